package agent

import (
	"context"
	"strings"

	"github.com/gregpriday/memory-mcp/internal/filter"
	"github.com/gregpriday/memory-mcp/internal/llm"
)

// ForgetRequest is one forget invocation. DryRun defaults to true when
// unset.
type ForgetRequest struct {
	Input             string
	Index             string
	Filters           map[string]interface{}
	DryRun            *bool
	ExplicitMemoryIDs []string
	ProjectPrompt     string
}

// PlannedDeletion is one memory the model marked for removal.
type PlannedDeletion struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ForgetResult reports planned or executed deletions.
type ForgetResult struct {
	Status       string            `json:"status"`
	Index        string            `json:"index"`
	DryRun       bool              `json:"dryRun"`
	Deletions    []PlannedDeletion `json:"deletions,omitempty"`
	DeletedCount int               `json:"deletedCount"`
	Summary      string            `json:"summary,omitempty"`
}

// Forget plans deletions matching the request and, outside dry-run,
// lets the model execute them. Dry-run is the default: the model only
// reports what it would delete.
func (a *Agent) Forget(ctx context.Context, req ForgetRequest) (*ForgetResult, error) {
	dryRun := req.DryRun == nil || *req.DryRun

	explicitIDs := make([]string, 0, len(req.ExplicitMemoryIDs))
	for _, id := range req.ExplicitMemoryIDs {
		if id = strings.TrimSpace(id); id != "" {
			explicitIDs = append(explicitIDs, id)
		}
	}

	mode := ModeNormal
	if dryRun {
		mode = ModeForgetDryRun
	}
	rc := newRequestContext(req.Index, mode)
	rc.Forget = &ForgetContext{
		ExplicitIDs: explicitIDs,
		HasFilters:  len(req.Filters) > 0,
		DryRun:      dryRun,
	}

	payload := map[string]interface{}{
		"input":  req.Input,
		"dryRun": dryRun,
	}
	if len(explicitIDs) > 0 {
		payload["explicitMemoryIds"] = explicitIDs
	}
	if expr := filter.FromStructured(req.Filters); expr != "" {
		payload["filterExpression"] = expr
	}

	prompt := llm.ComposePrompt(llm.ForgetSystemPrompt, req.ProjectPrompt)
	final, err := a.runLoop(ctx, rc, prompt, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Deletions []PlannedDeletion `json:"deletions"`
		Summary   string            `json:"summary"`
	}
	if err := llm.DecodeObject(final, &parsed); err != nil {
		return nil, err
	}

	status := "ok"
	if dryRun {
		status = "dry_run"
	}
	return &ForgetResult{
		Status:       status,
		Index:        req.Index,
		DryRun:       dryRun,
		Deletions:    parsed.Deletions,
		DeletedCount: rc.DeletedCount,
		Summary:      parsed.Summary,
	}, nil
}
