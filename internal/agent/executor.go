package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

// ExecutionResult summarizes a plan run. Per-action failures are
// collected; the batch never aborts.
type ExecutionResult struct {
	AppliedCount int      `json:"appliedCount"`
	SkippedCount int      `json:"skippedCount"`
	NewMemoryIDs []string `json:"newMemoryIds,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// executePlan applies validated refinement actions deterministically.
// No LLM calls happen here.
func (a *Agent) executePlan(ctx context.Context, index string, actions []Action) *ExecutionResult {
	result := &ExecutionResult{}
	for i, action := range actions {
		var err error
		switch action.Action {
		case ActionUpdate:
			err = a.applyUpdate(ctx, index, action)
		case ActionMerge:
			err = a.applyMerge(ctx, index, action, result)
		case ActionCreate:
			err = a.applyCreate(ctx, index, action, result)
		case ActionDelete:
			err = a.applyDelete(ctx, index, action)
		default:
			err = fmt.Errorf("unknown action type %q", action.Action)
		}
		if err != nil {
			result.SkippedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("action %d (%s): %v", i, action.Action, err))
			a.log.Warn("refinement action failed",
				zap.Int("action", i),
				zap.String("type", action.Action),
				zap.Error(err),
			)
			continue
		}
		result.AppliedCount++
	}
	return result
}

func (a *Agent) applyUpdate(ctx context.Context, index string, action Action) error {
	existing, err := a.repo.GetMemory(ctx, index, action.ID)
	if err != nil {
		return err
	}

	text := action.Text
	if text == "" {
		text = existing.Content.Text
	}
	_, err = a.repo.UpsertMemories(ctx, index, []*types.Memory{{
		ID:       action.ID,
		Content:  types.Content{Text: text},
		Metadata: action.Metadata,
	}}, nil)
	return err
}

// applyMerge folds source memories into the first listed ID. Sources
// are marked superseded by the target, then hard-deleted. System
// sources survive with a warning.
func (a *Agent) applyMerge(ctx context.Context, index string, action Action, result *ExecutionResult) error {
	targetID, sourceIDs := action.IDs[0], action.IDs[1:]

	memories, err := a.repo.GetMemories(ctx, index, action.IDs)
	if err != nil {
		return err
	}
	byID := make(map[string]*types.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}
	target, ok := byID[targetID]
	if !ok {
		return fmt.Errorf("merge target %s not found", targetID)
	}

	derivedFrom := append([]string{}, target.DerivedFromIDs...)
	var removable []string
	for _, id := range sourceIDs {
		src, ok := byID[id]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("merge source %s not found, skipped", id))
			continue
		}
		if src.IsSystem() {
			result.Errors = append(result.Errors, fmt.Sprintf("merge source %s is system-owned, kept", id))
			continue
		}
		derivedFrom = append(derivedFrom, id)
		removable = append(removable, id)
	}

	text := action.Text
	if text == "" {
		text = target.Content.Text
	}
	md := make(map[string]interface{}, len(action.Metadata)+1)
	for k, v := range action.Metadata {
		md[k] = v
	}
	md["derivedFromIds"] = dedupe(derivedFrom)

	if _, err := a.repo.UpsertMemories(ctx, index, []*types.Memory{{
		ID:       targetID,
		Content:  types.Content{Text: text},
		Metadata: md,
	}}, nil); err != nil {
		return err
	}
	if len(removable) == 0 {
		return nil
	}
	if _, err := a.repo.MarkMemoriesSuperseded(ctx, index, removable, targetID); err != nil {
		return err
	}
	_, err = a.repo.DeleteMemories(ctx, index, removable)
	return err
}

func (a *Agent) applyCreate(ctx context.Context, index string, action Action, result *ExecutionResult) error {
	md := make(map[string]interface{}, len(action.Metadata)+1)
	for k, v := range action.Metadata {
		md[k] = v
	}
	// The planner sometimes repeats request-scoped fields; the index
	// is bound by the request and IDs are minted by the repository.
	delete(md, "index")
	delete(md, "id")
	if derived := action.derivedFrom(); len(derived) > 0 {
		md["derivedFromIds"] = derived
	}

	ids, err := a.repo.UpsertMemories(ctx, index, []*types.Memory{{
		Content:  types.Content{Text: action.Text},
		Metadata: md,
	}}, nil)
	if err != nil {
		return err
	}
	result.NewMemoryIDs = append(result.NewMemoryIDs, ids...)

	// A consolidated pattern supersedes the episodes it was derived
	// from.
	if action.isPatternCreate() && len(ids) == 1 {
		if derived := action.derivedFrom(); len(derived) > 0 {
			if _, err := a.repo.MarkMemoriesSuperseded(ctx, index, derived, ids[0]); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to supersede sources of %s: %v", ids[0], err))
			}
		}
	}
	return nil
}

func (a *Agent) applyDelete(ctx context.Context, index string, action Action) error {
	ids := action.deleteIDs()

	// System ownership lives in the ID prefix or in the stored source,
	// so the targets have to be fetched before filtering.
	existing, err := a.repo.GetMemories(ctx, index, ids)
	if err != nil {
		return err
	}
	sourceByID := make(map[string]types.Source, len(existing))
	for _, m := range existing {
		sourceByID[m.ID] = m.Source
	}

	var deletable []string
	skipped := 0
	for _, id := range ids {
		if types.IsSystemMemory(id, sourceByID[id]) {
			skipped++
			continue
		}
		deletable = append(deletable, id)
	}
	if len(deletable) == 0 {
		if skipped > 0 {
			return fmt.Errorf("all %d targets are system-owned", skipped)
		}
		return fmt.Errorf("nothing to delete")
	}
	_, err = a.repo.DeleteMemories(ctx, index, deletable)
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
