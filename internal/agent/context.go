// Package agent drives the LLM-facing memory operations: memorize,
// recall, forget, and refine. Each operation composes a prompt, runs a
// bounded tool-calling loop against the repository, and reconciles the
// model's answer with what actually happened.
package agent

import (
	"time"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Mode gates which tools the model may call during a request.
type Mode string

const (
	// ModeNormal allows the full catalog including writes.
	ModeNormal Mode = "normal"
	// ModeForgetDryRun is read-only planning for forget.
	ModeForgetDryRun Mode = "forget-dryrun"
	// ModeRefinementPlanning is read-only planning for refine.
	ModeRefinementPlanning Mode = "refinement-planning"
)

// Forget confidence tiers. Search hits below the tier are hidden from
// the model so it cannot plan deletions off weak matches.
const (
	forgetThresholdExplicit  = 0.0
	forgetThresholdCautious  = 0.4
	forgetThresholdUnfocused = 0.6
)

// ForgetContext carries the deletion request shape that picks the
// confidence tier.
type ForgetContext struct {
	ExplicitIDs []string
	HasFilters  bool
	DryRun      bool
}

// Threshold returns the minimum search score for forget candidates.
func (f *ForgetContext) Threshold() float64 {
	switch {
	case len(f.ExplicitIDs) > 0:
		return forgetThresholdExplicit
	case f.DryRun || f.HasFilters:
		return forgetThresholdCautious
	default:
		return forgetThresholdUnfocused
	}
}

// LogEntry records one tool invocation for post-loop reconciliation
// and debugging.
type LogEntry struct {
	Tool            string
	Timestamp       time.Time
	ArgsSummary     string
	ResultSummary   string
	MemoriesCount   int
	StoredIDs       []string
	SearchResultIDs []string
	ErrorMessage    string
}

// RequestContext is the per-request mutable state of one operation.
// A fresh context is created per request; nothing in it is shared.
type RequestContext struct {
	Index                 string
	Mode                  Mode
	StoredMemoryIDs       []string
	DeletedCount          int
	SearchIterations      int
	TrackedMemoryIDs      map[string]bool
	SearchDiagnostics     []types.SearchDiagnostics
	OperationLog          []LogEntry
	Forget                *ForgetContext
	ForceValidationBypass bool
	ValidationMessages    []string
}

func newRequestContext(index string, mode Mode) *RequestContext {
	return &RequestContext{
		Index:            index,
		Mode:             mode,
		TrackedMemoryIDs: make(map[string]bool),
	}
}

func (rc *RequestContext) logTool(entry LogEntry) {
	entry.Timestamp = time.Now()
	rc.OperationLog = append(rc.OperationLog, entry)
}

// searchResultIDs collects every memory ID any search returned, in log
// order, deduplicated.
func (rc *RequestContext) searchResultIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, entry := range rc.OperationLog {
		for _, id := range entry.SearchResultIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
