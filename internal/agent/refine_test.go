package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

func patternCreate(text string, derivedFrom ...string) Action {
	return Action{
		Action:         ActionCreate,
		Text:           text,
		DerivedFromIDs: derivedFrom,
		Metadata: map[string]interface{}{
			"kind":       "derived",
			"memoryType": "pattern",
		},
	}
}

func planResponse(t *testing.T, actions []Action) *llm.ChatResponse {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{"actions": actions, "summary": "test plan"})
	require.NoError(t, err)
	return finalTurn(string(data))
}

func TestRefine_ConsolidationDryRunBudget(t *testing.T) {
	// Eight planned pattern CREATEs, two citing a nonexistent memory.
	// Budget five: the invalid two are dropped, the remaining six are
	// sliced to five, and nothing is applied in dry-run.
	repo := newFakeRepo()
	for i := 1; i <= 24; i++ {
		repo.addMemory(&types.Memory{ID: fmt.Sprintf("mem_%d", i), Content: types.Content{Text: "episode"}})
	}

	var actions []Action
	for i := 0; i < 6; i++ {
		base := i*3 + 1
		actions = append(actions, patternCreate(
			fmt.Sprintf("pattern %d", i),
			fmt.Sprintf("mem_%d", base), fmt.Sprintf("mem_%d", base+1), fmt.Sprintf("mem_%d", base+2),
		))
	}
	actions = append(actions,
		patternCreate("bad one", "mem_1", "mem_2", "mem_ghost"),
		patternCreate("bad two", "mem_missing", "mem_3", "mem_4"),
	)

	chat := &scriptedChat{responses: []*llm.ChatResponse{planResponse(t, actions)}}
	a := New(Deps{Repo: repo, Chat: chat, Config: Config{RefineBudget: 5}})

	result, err := a.Refine(context.Background(), RefineRequest{
		Operation: OpConsolidation,
		Budget:    5,
		Index:     "main",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusBudgetReached, result.Status)
	assert.Equal(t, 8, result.PlannedCount)
	assert.Len(t, result.Actions, 5)
	assert.Equal(t, 0, result.AppliedCount)
	assert.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.Contains(t, e, "nonexistent")
	}
	// Dry run: planning mode never wrote anything.
	assert.Zero(t, repo.upsertCount())
	assert.Zero(t, repo.deleteCount())
}

func TestRefine_ConsolidationRequiresThreeSources(t *testing.T) {
	repo := newFakeRepo()
	repo.addMemory(&types.Memory{ID: "mem_1"})
	repo.addMemory(&types.Memory{ID: "mem_2"})

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		planResponse(t, []Action{patternCreate("thin pattern", "mem_1", "mem_2")}),
	}}
	a := New(Deps{Repo: repo, Chat: chat})

	result, err := a.Refine(context.Background(), RefineRequest{Operation: OpConsolidation, Index: "main"})
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "at least 3")
}

func TestRefine_ExecutesWhenNotDryRun(t *testing.T) {
	repo := newFakeRepo()
	repo.addMemory(&types.Memory{ID: "mem_old", Content: types.Content{Text: "stale"}})

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		planResponse(t, []Action{
			{Action: ActionUpdate, ID: "mem_old", Text: "fresh"},
			{Action: ActionDelete, ID: "mem_gone"},
		}),
	}}
	a := New(Deps{Repo: repo, Chat: chat})

	dryRun := false
	result, err := a.Refine(context.Background(), RefineRequest{
		Operation: OpCleanup,
		DryRun:    &dryRun,
		Index:     "main",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, 2, result.AppliedCount)
	assert.Equal(t, "fresh", repo.memories["mem_old"].Content.Text)
}

func TestRefine_UnknownOperation(t *testing.T) {
	a := New(Deps{Repo: newFakeRepo(), Chat: &scriptedChat{}})
	_, err := a.Refine(context.Background(), RefineRequest{Operation: "defragment", Index: "main"})
	assert.Error(t, err)
}

func TestRefine_InvalidActionsDropped(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{
		planResponse(t, []Action{
			{Action: ActionUpdate},                     // missing id
			{Action: "EXPLODE", ID: "mem_1"},           // unknown type
			{Action: ActionDelete, ID: "mem_deletable"}, // fine
		}),
	}}
	a := New(Deps{Repo: newFakeRepo(), Chat: chat})

	result, err := a.Refine(context.Background(), RefineRequest{Operation: OpCleanup, Index: "main"})
	require.NoError(t, err)
	assert.Len(t, result.Actions, 1)
	assert.Len(t, result.Errors, 2)
}

func TestReflect_ValidatesBeliefs(t *testing.T) {
	repo := newFakeRepo()
	repo.queueSearch(
		scored("mem_p1", "always reviews before merging", 0.9),
		scored("mem_p2", "writes tests first", 0.8),
	)

	reflection := `{"beliefs": [
		{"text": "values code quality", "memoryType": "belief", "derivedFromIds": ["mem_p1", "mem_p2"], "confidence": 0.9},
		{"text": "grounded nowhere", "memoryType": "belief", "derivedFromIds": ["mem_invented"], "confidence": 0.9},
		{"text": "wrong type", "memoryType": "episodic", "derivedFromIds": ["mem_p1"], "confidence": 0.5}
	]}`

	dryRun := false
	a := New(Deps{Repo: repo, Simple: &fakeSimple{out: reflection}})
	result, err := a.Refine(context.Background(), RefineRequest{
		Operation: OpReflection,
		DryRun:    &dryRun,
		Index:     "main",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AppliedCount)
	assert.Len(t, result.Errors, 2)
	require.Equal(t, 1, repo.upsertCount())

	stored := repo.upserts[0][0]
	assert.Equal(t, "values code quality", stored.Content.Text)
	assert.Equal(t, "derived", stored.Metadata["kind"])
	assert.Equal(t, "stable", stored.Metadata["stability"])
	assert.Equal(t, []string{"mem_p1", "mem_p2"}, stored.Metadata["derivedFromIds"])
}

func TestReflect_DryRunStoresNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.queueSearch(scored("mem_p1", "pattern", 0.9))

	a := New(Deps{Repo: repo, Simple: &fakeSimple{
		out: `{"beliefs": [{"text": "a belief", "memoryType": "self", "derivedFromIds": ["mem_p1"], "confidence": 0.8}]}`,
	}})
	result, err := a.Refine(context.Background(), RefineRequest{Operation: OpReflection, Index: "main"})
	require.NoError(t, err)

	assert.Equal(t, StatusDryRun, result.Status)
	assert.Equal(t, 1, result.PlannedCount)
	assert.Zero(t, result.AppliedCount)
	assert.Zero(t, repo.upsertCount())
}

func TestReflect_NoPatterns(t *testing.T) {
	a := New(Deps{Repo: newFakeRepo(), Simple: &fakeSimple{out: "{}"}})
	result, err := a.Refine(context.Background(), RefineRequest{Operation: OpReflection, Index: "main"})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "no patterns")
}

func TestPatternFilter(t *testing.T) {
	assert.Equal(t, `@metadata.memoryType = "pattern"`, patternFilter("", ""))
	assert.Contains(t, patternFilter("work", ""), `@metadata.topic = "work"`)
	assert.Contains(t, patternFilter("", "medium"), `"medium" OR @metadata.importance = "high"`)
	assert.Contains(t, patternFilter("", "high"), `@metadata.importance = "high"`)
}

func TestActionValidate(t *testing.T) {
	cases := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"valid update", Action{Action: ActionUpdate, ID: "mem_1", Text: "x"}, false},
		{"update without id", Action{Action: ActionUpdate, Text: "x"}, true},
		{"update changing nothing", Action{Action: ActionUpdate, ID: "mem_1"}, true},
		{"valid merge", Action{Action: ActionMerge, IDs: []string{"mem_1", "mem_2"}}, false},
		{"merge one id", Action{Action: ActionMerge, IDs: []string{"mem_1"}}, true},
		{"valid create", Action{Action: ActionCreate, Text: "new"}, false},
		{"create empty text", Action{Action: ActionCreate, Text: "  "}, true},
		{"valid delete", Action{Action: ActionDelete, ID: "mem_1"}, false},
		{"delete no target", Action{Action: ActionDelete}, true},
		{"unknown", Action{Action: "SHRED", ID: "mem_1"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.action.Validate()
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
