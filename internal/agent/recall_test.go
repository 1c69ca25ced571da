package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

func TestRecall_AnswersFromPrefetch(t *testing.T) {
	repo := newFakeRepo()
	repo.queueSearch(scored("mem_1", "drinks dark roast", 0.92))

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		finalTurn(`{"memories": [{"id": "mem_1", "relevance": 0.95, "summary": "coffee preference"}], "synthesis": "They drink dark roast."}`),
	}}

	result, err := newTestAgent(repo, chat).Recall(context.Background(), RecallRequest{
		Query: "what coffee do they drink?",
		Index: "main",
	})
	require.NoError(t, err)

	assert.Equal(t, "They drink dark roast.", result.Answer)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "mem_1", result.Memories[0].ID)
	assert.Equal(t, "found", result.SearchStatus)
	require.Len(t, result.SupportingMemories, 1)

	// The final selection is access-tracked.
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.tracked) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"mem_1"}, repo.tracked[0])
}

func TestRecall_ExpandedQueriesMergeKeepHighest(t *testing.T) {
	repo := newFakeRepo()
	repo.queueSearch(scored("mem_1", "a", 0.5), scored("mem_2", "b", 0.7))
	repo.queueSearch(scored("mem_1", "a", 0.9), scored("mem_3", "c", 0.6))

	chat := &scriptedChat{responses: []*llm.ChatResponse{
		finalTurn(`{"memories": [], "synthesis": "nothing relevant"}`),
	}}

	a := New(Deps{
		Repo:   repo,
		Chat:   chat,
		Simple: &fakeSimple{out: `{"queries": ["alternative phrasing"]}`},
		Config: Config{QueryExpansionEnabled: true, QueryExpansionCount: 1},
	})

	result, err := a.Recall(context.Background(), RecallRequest{
		Query: "original", Index: "main", Limit: 2,
	})
	require.NoError(t, err)

	// Both queries ran.
	assert.Len(t, repo.searchQueries, 2)
	// Merged by ID keeping the highest score, truncated to limit.
	require.Len(t, result.SupportingMemories, 2)
	assert.Equal(t, "mem_1", result.SupportingMemories[0].Memory.ID)
	assert.InDelta(t, 0.9, result.SupportingMemories[0].Score, 1e-9)
	assert.Equal(t, "mem_2", result.SupportingMemories[1].Memory.ID)
}

func TestRecall_StructuredFiltersSerialized(t *testing.T) {
	repo := newFakeRepo()
	chat := &scriptedChat{responses: []*llm.ChatResponse{
		finalTurn(`{"memories": [], "synthesis": "nothing"}`),
	}}

	_, err := newTestAgent(repo, chat).Recall(context.Background(), RecallRequest{
		Query:            "q",
		Index:            "main",
		Filters:          map[string]interface{}{"topic": "work"},
		FilterExpression: `@metadata.kind = "raw"`,
	})
	require.NoError(t, err)

	require.NotEmpty(t, repo.searchOpts)
	expr := repo.searchOpts[0].FilterExpression
	assert.Contains(t, expr, `@metadata.topic = "work"`)
	assert.Contains(t, expr, `@metadata.kind = "raw"`)
	assert.Contains(t, expr, "AND")
}

func TestRecall_ExpansionFailureIsNonFatal(t *testing.T) {
	repo := newFakeRepo()
	chat := &scriptedChat{responses: []*llm.ChatResponse{
		finalTurn(`{"memories": [], "synthesis": "ok"}`),
	}}
	a := New(Deps{
		Repo:   repo,
		Chat:   chat,
		Simple: &fakeSimple{out: "not json at all"},
		Config: Config{QueryExpansionEnabled: true},
	})

	result, err := a.Recall(context.Background(), RecallRequest{Query: "q", Index: "main"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
	assert.Len(t, repo.searchQueries, 1)
}

func TestParseRecallResponse(t *testing.T) {
	answer, memories := parseRecallResponse(`{"memories": [{"id": "mem_1", "relevance": 0.8}], "synthesis": "found it"}`)
	assert.Equal(t, "found it", answer)
	require.Len(t, memories, 1)

	// Tolerates "none" instead of an array.
	answer, memories = parseRecallResponse(`{"memories": "none", "synthesis": "nothing stored"}`)
	assert.Equal(t, "nothing stored", answer)
	assert.Empty(t, memories)

	// Entries without IDs are dropped.
	_, memories = parseRecallResponse(`{"memories": [{"relevance": 0.5}, {"id": "mem_2"}], "synthesis": "x"}`)
	require.Len(t, memories, 1)
	assert.Equal(t, "mem_2", memories[0].ID)

	// Unparseable output becomes the answer.
	answer, memories = parseRecallResponse("just prose, no JSON")
	assert.Equal(t, "just prose, no JSON", answer)
	assert.Empty(t, memories)
}

func TestTrackRecalled_SkipsAlreadyTrackedAndCaps(t *testing.T) {
	repo := newFakeRepo()
	a := New(Deps{Repo: repo, Config: Config{AccessTrackingTopN: 2}})
	rc := newRequestContext("main", ModeNormal)
	rc.TrackedMemoryIDs["mem_seen"] = true

	a.trackRecalled(context.Background(), rc, []RecalledMemory{
		{ID: "mem_seen"}, {ID: "mem_a"}, {ID: "mem_b"}, {ID: "mem_c"},
	})

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.tracked) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"mem_a", "mem_b"}, repo.tracked[0])
}

func TestRecall_ResponseModeMemoriesOmitsAnswer(t *testing.T) {
	repo := newFakeRepo()
	repo.queueSearch(types.SearchResult{Memory: &types.Memory{ID: "mem_1", Content: types.Content{Text: "x"}}, Score: 0.9})
	chat := &scriptedChat{responses: []*llm.ChatResponse{
		finalTurn(`{"memories": [{"id": "mem_1", "relevance": 1}], "synthesis": "an answer"}`),
	}}

	result, err := newTestAgent(repo, chat).Recall(context.Background(), RecallRequest{
		Query: "q", Index: "main", ResponseMode: ResponseModeMemories,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Answer)
	assert.NotEmpty(t, result.Memories)
}
