package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

func TestForget_DryRunByDefault(t *testing.T) {
	repo := newFakeRepo()
	repo.addMemory(&types.Memory{ID: "mem_old", Content: types.Content{Text: "obsolete"}})
	repo.queueSearch(scored("mem_old", "obsolete", 0.9))

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "c1", Name: "search_memories", Arguments: `{"query": "obsolete things"}`}),
		// Planning only; any delete attempt would be rejected anyway.
		finalTurn(`{"deletions": [{"id": "mem_old", "confidence": 0.9, "reason": "clearly obsolete"}], "summary": "one memory would be removed"}`),
	}}

	result, err := newTestAgent(repo, chat).Forget(context.Background(), ForgetRequest{
		Input: "forget the obsolete things",
		Index: "main",
	})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, "dry_run", result.Status)
	require.Len(t, result.Deletions, 1)
	assert.Equal(t, "mem_old", result.Deletions[0].ID)
	assert.Zero(t, result.DeletedCount)
	// Nothing was deleted and the memory survives.
	assert.Contains(t, repo.memories, "mem_old")
	assert.Zero(t, repo.deleteCount())
}

func TestForget_DryRunBlocksDeleteTool(t *testing.T) {
	repo := newFakeRepo()
	repo.addMemory(&types.Memory{ID: "mem_x"})

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "c1", Name: "delete_memories", Arguments: `{"ids": ["mem_x"]}`}),
		finalTurn(`{"deletions": [], "summary": "could not delete"}`),
	}}

	result, err := newTestAgent(repo, chat).Forget(context.Background(), ForgetRequest{
		Input: "delete it all",
		Index: "main",
	})
	require.NoError(t, err)
	assert.Zero(t, result.DeletedCount)
	assert.Contains(t, repo.memories, "mem_x")
	assert.Zero(t, repo.deleteCount())
}

func TestForget_ExecutionDeletes(t *testing.T) {
	repo := newFakeRepo()
	repo.addMemory(&types.Memory{ID: "mem_victim"})

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "c1", Name: "delete_memories", Arguments: `{"ids": ["mem_victim"]}`}),
		finalTurn(`{"deletions": [{"id": "mem_victim", "confidence": 1.0}], "summary": "deleted"}`),
	}}

	dryRun := false
	result, err := newTestAgent(repo, chat).Forget(context.Background(), ForgetRequest{
		Input:             "remove it",
		Index:             "main",
		DryRun:            &dryRun,
		ExplicitMemoryIDs: []string{" mem_victim ", ""},
	})
	require.NoError(t, err)

	assert.False(t, result.DryRun)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 1, result.DeletedCount)
	assert.NotContains(t, repo.memories, "mem_victim")
}

func TestForget_ExplicitIDsSanitized(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{
		finalTurn(`{"deletions": [], "summary": "nothing matched"}`),
	}}

	a := newTestAgent(newFakeRepo(), chat)
	_, err := a.Forget(context.Background(), ForgetRequest{
		Input:             "x",
		Index:             "main",
		ExplicitMemoryIDs: []string{"  ", "mem_1 ", ""},
	})
	require.NoError(t, err)

	// The sanitized list reached the model payload.
	require.Len(t, chat.requests, 1)
	userMsg := chat.requests[0].Messages[1].Content
	assert.Contains(t, userMsg, `"mem_1"`)
	assert.NotContains(t, userMsg, `"  "`)
}
