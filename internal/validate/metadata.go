package validate

import (
	"fmt"
	"math"
	"strings"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

// MetadataError carries every problem found in a metadata object so the
// caller can surface them all at once instead of one per round trip.
type MetadataError struct {
	Issues []string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("invalid metadata: %s", strings.Join(e.Issues, "; "))
}

// Metadata validates a candidate metadata object produced by the LLM or the
// caller. It checks enum membership, dynamics ranges, relationship shape,
// emotion bounds, list fields, and the date field. A nil return means the
// object is safe to persist.
func Metadata(md map[string]interface{}) error {
	if md == nil {
		return nil
	}

	var issues []string
	addf := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	checkEnum(md, addf, "memoryType", "memory_type", types.IsValidMemoryType)
	checkEnum(md, addf, "importance", "", types.IsValidImportance)
	checkEnum(md, addf, "source", "", types.IsValidSource)
	checkEnum(md, addf, "kind", "", types.IsValidKind)
	checkEnum(md, addf, "stability", "", types.IsValidStability)

	if raw, ok := lookup(md, "dynamics", ""); ok {
		validateDynamics(raw, addf)
	}
	if raw, ok := lookup(md, "relationships", ""); ok {
		validateRelationships(raw, addf)
	}
	if raw, ok := lookup(md, "emotion", ""); ok {
		validateEmotion(raw, addf)
	}

	for _, key := range []string{"tags", "relatedIds", "derivedFromIds"} {
		if raw, ok := lookup(md, key, ""); ok {
			if _, err := StringList(raw); err != nil {
				addf("%s: %v", key, err)
			}
		}
	}

	if raw, ok := lookup(md, "date", ""); ok {
		s, isString := raw.(string)
		if !isString {
			addf("date must be a string")
		} else if err := Date(s); err != nil {
			addf("%v", err)
		}
	}

	if len(issues) > 0 {
		return &MetadataError{Issues: issues}
	}
	return nil
}

// StringList coerces a value into a []string, rejecting non-list values and
// non-string elements.
func StringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}
}

func checkEnum(md map[string]interface{}, addf func(string, ...interface{}), key, alias string, valid func(string) bool) {
	raw, ok := lookup(md, key, alias)
	if !ok {
		return
	}
	s, isString := raw.(string)
	if !isString {
		addf("%s must be a string, got %T", key, raw)
		return
	}
	if !valid(s) {
		addf("unknown %s %q", key, s)
	}
}

// lookup reads a key from the map, accepting an alternative spelling.
func lookup(md map[string]interface{}, key, alias string) (interface{}, bool) {
	if v, ok := md[key]; ok {
		return v, true
	}
	if alias != "" {
		if v, ok := md[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func validateDynamics(raw interface{}, addf func(string, ...interface{})) {
	d, ok := raw.(map[string]interface{})
	if !ok {
		addf("dynamics must be an object, got %T", raw)
		return
	}

	for _, key := range []string{"initialPriority", "currentPriority"} {
		if v, present := d[key]; present {
			f, isNum := asFloat(v)
			if !isNum || math.IsNaN(f) || f < 0 || f > 1 {
				addf("dynamics.%s must be a number in [0,1]", key)
			}
		}
	}

	if v, present := d["accessCount"]; present {
		f, isNum := asFloat(v)
		if !isNum || f < 0 || f != math.Trunc(f) {
			addf("dynamics.accessCount must be a non-negative integer")
		}
	}

	for _, key := range []string{"createdAt", "lastAccessedAt"} {
		if v, present := d[key]; present {
			s, isString := v.(string)
			if !isString {
				addf("dynamics.%s must be an ISO-8601 string", key)
				continue
			}
			if res := Timestamp(s); !res.Valid {
				addf("dynamics.%s: %s", key, res.Error)
			}
		}
	}

	if v, present := d["stability"]; present {
		s, isString := v.(string)
		if !isString || !types.IsValidStability(s) {
			addf("dynamics.stability must be tentative, stable, or canonical")
		}
	}
}

func validateRelationships(raw interface{}, addf func(string, ...interface{})) {
	list, ok := raw.([]interface{})
	if !ok {
		addf("relationships must be a list, got %T", raw)
		return
	}

	for i, elem := range list {
		rel, ok := elem.(map[string]interface{})
		if !ok {
			addf("relationships[%d] must be an object", i)
			continue
		}

		target, _ := rel["targetId"].(string)
		if target == "" {
			addf("relationships[%d] is missing targetId", i)
		}

		if v, present := rel["type"]; present {
			s, isString := v.(string)
			if !isString || !types.IsValidRelationshipType(s) {
				addf("relationships[%d] has unknown type %v", i, v)
			}
		} else {
			addf("relationships[%d] is missing type", i)
		}

		if v, present := rel["weight"]; present {
			f, isNum := asFloat(v)
			if !isNum || f < 0 || f > 1 {
				addf("relationships[%d] weight must be in [0,1]", i)
			}
		}
	}
}

func validateEmotion(raw interface{}, addf func(string, ...interface{})) {
	e, ok := raw.(map[string]interface{})
	if !ok {
		addf("emotion must be an object, got %T", raw)
		return
	}

	if v, present := e["label"]; present {
		if _, isString := v.(string); !isString {
			addf("emotion.label must be a string")
		}
	}

	if v, present := e["intensity"]; present {
		f, isNum := asFloat(v)
		if !isNum || f < 0 || f > 1 {
			addf("emotion.intensity must be a number in [0,1]")
		}
	}
}

// asFloat accepts the numeric types JSON decoding and Go callers produce.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
