package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/internal/validate"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Refine sub-operations.
const (
	OpConsolidation = "consolidation"
	OpDecay         = "decay"
	OpCleanup       = "cleanup"
	OpReflection    = "reflection"
)

// Refine statuses.
const (
	StatusOK            = "ok"
	StatusDryRun        = "dry_run"
	StatusBudgetReached = "budget_reached"
)

// Consolidated patterns must cite at least this many sources.
const minConsolidationSources = 3

// How many patterns reflection samples.
const reflectionSampleSize = 30

// RefineRequest is one refine invocation. Budget 0 means the
// configured default; DryRun defaults to true when unset.
type RefineRequest struct {
	Operation     string
	Scope         map[string]interface{}
	Budget        int
	DryRun        *bool
	Index         string
	ProjectPrompt string
}

// RefineResult reports the plan and, outside dry-run, its execution.
type RefineResult struct {
	Status       string   `json:"status"`
	Index        string   `json:"index"`
	Operation    string   `json:"operation"`
	DryRun       bool     `json:"dryRun"`
	Actions      []Action `json:"actions,omitempty"`
	PlannedCount int      `json:"plannedCount"`
	AppliedCount int      `json:"appliedCount"`
	SkippedCount int      `json:"skippedCount"`
	NewMemoryIDs []string `json:"newMemoryIds,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

// Refine runs memory maintenance. Reflection is a single-shot path;
// the other operations plan in read-only mode, validate the plan, and
// replay it deterministically.
func (a *Agent) Refine(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	op := strings.ToLower(strings.TrimSpace(req.Operation))
	if op == "" {
		op = OpConsolidation
	}
	dryRun := req.DryRun == nil || *req.DryRun

	switch op {
	case OpReflection:
		return a.reflect(ctx, req, dryRun)
	case OpConsolidation, OpDecay, OpCleanup:
		return a.planAndExecute(ctx, req, op, dryRun)
	default:
		return nil, fmt.Errorf("agent: unknown refine operation %q", req.Operation)
	}
}

func (a *Agent) planAndExecute(ctx context.Context, req RefineRequest, op string, dryRun bool) (*RefineResult, error) {
	rc := newRequestContext(req.Index, ModeRefinementPlanning)

	payload := map[string]interface{}{
		"operation": op,
	}
	if len(req.Scope) > 0 {
		payload["scope"] = req.Scope
	}

	prompt := llm.ComposePrompt(llm.RefinePlanSystemPrompt, req.ProjectPrompt)
	final, err := a.runLoop(ctx, rc, prompt, payload)
	if err != nil {
		return nil, err
	}
	planned, summary, err := parsePlan(final)
	if err != nil {
		return nil, err
	}

	result := &RefineResult{
		Index:        req.Index,
		Operation:    op,
		DryRun:       dryRun,
		PlannedCount: len(planned),
		Summary:      summary,
	}

	valid := planned[:0:0]
	for i := range planned {
		if err := planned[i].Validate(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		valid = append(valid, planned[i])
	}
	if op == OpConsolidation {
		valid = a.validateConsolidation(ctx, req.Index, valid, result)
	}

	budget := req.Budget
	if budget <= 0 {
		budget = a.cfg.RefineBudget
	}
	result.Status = StatusOK
	if len(valid) > budget {
		valid = valid[:budget]
		result.Status = StatusBudgetReached
	}
	result.Actions = valid

	if dryRun {
		if result.Status == StatusOK {
			result.Status = StatusDryRun
		}
		return result, nil
	}

	exec := a.executePlan(ctx, req.Index, valid)
	result.AppliedCount = exec.AppliedCount
	result.SkippedCount = exec.SkippedCount
	result.NewMemoryIDs = exec.NewMemoryIDs
	result.Errors = append(result.Errors, exec.Errors...)
	return result, nil
}

// validateConsolidation drops pattern CREATEs whose cited sources do
// not exist in the index or number fewer than three. Offending actions
// are removed, not repaired.
func (a *Agent) validateConsolidation(ctx context.Context, index string, actions []Action, result *RefineResult) []Action {
	var citedIDs []string
	seen := make(map[string]bool)
	for i := range actions {
		if !actions[i].isPatternCreate() {
			continue
		}
		for _, id := range actions[i].derivedFrom() {
			if !seen[id] {
				seen[id] = true
				citedIDs = append(citedIDs, id)
			}
		}
	}

	exists := make(map[string]bool, len(citedIDs))
	if len(citedIDs) > 0 {
		memories, err := a.repo.GetMemories(ctx, index, citedIDs)
		if err != nil {
			a.log.Warn("consolidation source lookup failed", zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("failed to verify consolidation sources: %v", err))
		} else {
			for _, m := range memories {
				exists[m.ID] = true
			}
		}
	}

	kept := actions[:0:0]
	for i := range actions {
		action := actions[i]
		if !action.isPatternCreate() {
			kept = append(kept, action)
			continue
		}
		derived := action.derivedFrom()
		if len(derived) < minConsolidationSources {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"pattern CREATE cites %d sources, need at least %d; dropped", len(derived), minConsolidationSources))
			continue
		}
		var missing []string
		for _, id := range derived {
			if !exists[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"pattern CREATE cites nonexistent memories %s; dropped", strings.Join(missing, ", ")))
			continue
		}
		kept = append(kept, action)
	}
	return kept
}

// llmBelief is the reflection output shape.
type llmBelief struct {
	Text           string   `json:"text"`
	MemoryType     string   `json:"memoryType"`
	DerivedFromIDs []string `json:"derivedFromIds"`
	Confidence     float64  `json:"confidence"`
	Relationships  []struct {
		TargetID string `json:"targetId"`
		Type     string `json:"type"`
	} `json:"relationships"`
}

// reflect derives beliefs from stored patterns in a single model call,
// validates each against the sampled pattern set, and stores the
// survivors unless dry-run.
func (a *Agent) reflect(ctx context.Context, req RefineRequest, dryRun bool) (*RefineResult, error) {
	patterns, err := a.collectPatterns(ctx, req.Index, req.Scope)
	if err != nil {
		return nil, err
	}

	result := &RefineResult{
		Status:    StatusOK,
		Index:     req.Index,
		Operation: OpReflection,
		DryRun:    dryRun,
	}
	if dryRun {
		result.Status = StatusDryRun
	}
	if len(patterns) == 0 {
		result.Summary = "no patterns to reflect on"
		return result, nil
	}

	patternIDs := make(map[string]bool, len(patterns))
	var b strings.Builder
	for _, p := range patterns {
		patternIDs[p.ID] = true
		fmt.Fprintf(&b, "[%s] (%s) %s\n", p.ID, p.MemoryType, p.Content.Text)
	}

	out, err := a.simple.Complete(ctx, llm.ReflectionSystemPrompt, b.String(), llm.DefaultAnalysisMaxTokens)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Beliefs []llmBelief `json:"beliefs"`
	}
	if err := llm.DecodeObject(out, &parsed); err != nil {
		return nil, err
	}

	var items []*types.Memory
	for i, belief := range parsed.Beliefs {
		if err := validateBelief(belief, patternIDs); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("belief %d: %v", i, err))
			continue
		}
		md := map[string]interface{}{
			"memoryType":     belief.MemoryType,
			"kind":           string(types.KindDerived),
			"stability":      string(types.StabilityStable),
			"derivedFromIds": belief.DerivedFromIDs,
		}
		if len(belief.Relationships) > 0 {
			rels := make([]interface{}, 0, len(belief.Relationships))
			for _, r := range belief.Relationships {
				rels = append(rels, map[string]interface{}{"targetId": r.TargetID, "type": r.Type})
			}
			md["relationships"] = rels
		}
		items = append(items, &types.Memory{
			Content:  types.Content{Text: belief.Text},
			Metadata: md,
		})
		result.Actions = append(result.Actions, Action{
			Action:         ActionCreate,
			Text:           belief.Text,
			Metadata:       md,
			DerivedFromIDs: belief.DerivedFromIDs,
		})
	}
	result.PlannedCount = len(result.Actions)

	if dryRun || len(items) == 0 {
		return result, nil
	}
	ids, err := a.repo.UpsertMemories(ctx, req.Index, items, nil)
	if err != nil {
		return nil, err
	}
	result.AppliedCount = len(ids)
	result.SkippedCount = len(parsed.Beliefs) - len(ids)
	result.NewMemoryIDs = ids
	return result, nil
}

func validateBelief(b llmBelief, patternIDs map[string]bool) error {
	if strings.TrimSpace(b.Text) == "" {
		return fmt.Errorf("empty text")
	}
	if b.MemoryType != string(types.TypeBelief) && b.MemoryType != string(types.TypeSelf) {
		return fmt.Errorf("memoryType must be belief or self, got %q", b.MemoryType)
	}
	if len(b.DerivedFromIDs) == 0 {
		return fmt.Errorf("missing derivedFromIds")
	}
	for _, id := range b.DerivedFromIDs {
		if !patternIDs[id] {
			return fmt.Errorf("derivedFromIds cites %s, not among the sampled patterns", id)
		}
	}
	for _, r := range b.Relationships {
		if !patternIDs[r.TargetID] {
			return fmt.Errorf("relationship targets %s, not among the sampled patterns", r.TargetID)
		}
	}
	return nil
}

// collectPatterns gathers the reflection inputs: explicit seed IDs
// from scope plus a filtered search over stored patterns.
func (a *Agent) collectPatterns(ctx context.Context, index string, scope map[string]interface{}) ([]*types.Memory, error) {
	topic, _ := scope["topic"].(string)
	minImportance, _ := scope["minImportance"].(string)

	var patterns []*types.Memory
	seen := make(map[string]bool)

	if seedIDs, err := validate.StringList(scope["seedIds"]); err == nil && len(seedIDs) > 0 {
		seeds, err := a.repo.GetMemories(ctx, index, seedIDs)
		if err != nil {
			return nil, err
		}
		for _, m := range seeds {
			if !seen[m.ID] {
				seen[m.ID] = true
				patterns = append(patterns, m)
			}
		}
	}

	query := "recurring patterns and regularities"
	if topic != "" {
		query = topic
	}
	results, err := a.repo.SearchMemories(ctx, index, query, storage.SearchOptions{
		Limit:              reflectionSampleSize,
		FilterExpression:   patternFilter(topic, minImportance),
		SkipAccessTracking: true,
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if !seen[r.Memory.ID] {
			seen[r.Memory.ID] = true
			patterns = append(patterns, r.Memory)
		}
	}
	return patterns, nil
}

// patternFilter builds the DSL filter for reflection sampling. The
// importance floor is expressed by enumerating the accepted levels.
func patternFilter(topic, minImportance string) string {
	expr := fmt.Sprintf("@metadata.memoryType = %q", types.TypePattern)
	if topic != "" {
		expr += fmt.Sprintf(" AND @metadata.topic = %q", topic)
	}
	switch minImportance {
	case string(types.ImportanceHigh):
		expr += ` AND @metadata.importance = "high"`
	case string(types.ImportanceMedium):
		expr += ` AND (@metadata.importance = "medium" OR @metadata.importance = "high")`
	}
	return expr
}
