// Package validate enforces schema on untrusted metadata and timestamps
// before anything reaches the repository. LLM output is parsed leniently
// elsewhere; this package is where it either passes or gets rejected.
package validate

import (
	"fmt"
	"regexp"
	"time"
)

// TimestampResult reports the outcome of timestamp validation. Normalized is
// only set when Valid is true.
type TimestampResult struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Error      string `json:"error,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

var dateOnlyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// timestampLayouts are the accepted ISO-8601 shapes, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp validates an ISO-8601 timestamp or date-only string and
// normalizes it to RFC 3339 UTC. Date-only input is accepted as midnight
// UTC with a warning.
func Timestamp(s string) TimestampResult {
	if s == "" {
		return TimestampResult{Valid: false, Error: "timestamp is empty"}
	}

	if dateOnlyPattern.MatchString(s) {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return TimestampResult{Valid: false, Error: fmt.Sprintf("invalid calendar date %q", s)}
		}
		return TimestampResult{
			Valid:      true,
			Normalized: t.UTC().Format(time.RFC3339),
			Warning:    "date-only timestamp assumed to be midnight UTC",
		}
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		res := TimestampResult{Valid: true, Normalized: t.UTC().Format(time.RFC3339)}
		if t.After(time.Now().Add(24 * time.Hour)) {
			res.Warning = "timestamp is in the future"
		}
		return res
	}

	return TimestampResult{Valid: false, Error: fmt.Sprintf("not a parseable ISO-8601 timestamp: %q", s)}
}

// Date validates a YYYY-MM-DD string including calendar validity
// (April 31 and February 31 are rejected, leap years are honored).
func Date(s string) error {
	if !dateOnlyPattern.MatchString(s) {
		return fmt.Errorf("date %q must match YYYY-MM-DD", s)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil || t.Format("2006-01-02") != s {
		return fmt.Errorf("date %q is not a valid calendar date", s)
	}
	return nil
}
