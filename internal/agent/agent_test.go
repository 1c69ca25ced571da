package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// fakeRepo scripts search results and records every mutation. The
// embedded interface panics on anything a test did not expect to hit.
type fakeRepo struct {
	storage.Repository

	mu            sync.Mutex
	memories      map[string]*types.Memory
	searchResults [][]types.SearchResult
	searchQueries []string
	searchOpts    []storage.SearchOptions
	upserts       [][]*types.Memory
	deleted       [][]string
	superseded    map[string]string
	tracked       [][]string
	nextID        int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		memories:   make(map[string]*types.Memory),
		superseded: make(map[string]string),
	}
}

func (f *fakeRepo) addMemory(m *types.Memory) {
	f.memories[m.ID] = m
}

// queueSearch scripts the next search's results. When the queue is
// empty, searches return nothing.
func (f *fakeRepo) queueSearch(results ...types.SearchResult) {
	f.searchResults = append(f.searchResults, results)
}

func (f *fakeRepo) SearchMemories(ctx context.Context, index, query string, opts storage.SearchOptions) ([]types.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchQueries = append(f.searchQueries, query)
	f.searchOpts = append(f.searchOpts, opts)

	var results []types.SearchResult
	if len(f.searchResults) > 0 {
		results = f.searchResults[0]
		f.searchResults = f.searchResults[1:]
	}
	var out []types.SearchResult
	for _, r := range results {
		if r.Score >= opts.MinScore {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetMemory(ctx context.Context, index, id string) (*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok {
		return nil, fmt.Errorf("%w: memory %s", storage.ErrNotFound, id)
	}
	return m, nil
}

func (f *fakeRepo) GetMemories(ctx context.Context, index string, ids []string) ([]*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Memory
	for _, id := range ids {
		if m, ok := f.memories[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertMemories(ctx context.Context, index string, items []*types.Memory, defaults map[string]interface{}) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, items)

	ids := make([]string, len(items))
	for i, m := range items {
		if m.ID == "" {
			f.nextID++
			m.ID = fmt.Sprintf("mem_fake_%d", f.nextID)
		}
		f.memories[m.ID] = m
		ids[i] = m.ID
	}
	return ids, nil
}

func (f *fakeRepo) DeleteMemories(ctx context.Context, index string, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids)
	count := 0
	for _, id := range ids {
		if _, ok := f.memories[id]; ok {
			delete(f.memories, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) MarkMemoriesSuperseded(ctx context.Context, index string, ids []string, supersededBy string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.superseded[id] = supersededBy
	}
	return len(ids), nil
}

func (f *fakeRepo) UpdateAccessStats(ctx context.Context, index string, ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, ids)
}

func (f *fakeRepo) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeRepo) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

// scriptedChat replays canned responses in order.
type scriptedChat struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest
}

func (c *scriptedChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scriptedChat: no responses left")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func finalTurn(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Content: content, FinishReason: llm.FinishStop}
}

func toolTurn(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{ToolCalls: calls, FinishReason: llm.FinishToolCalls}
}

// fakeSimple returns a fixed completion.
type fakeSimple struct {
	out string
	err error
}

func (f *fakeSimple) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return f.out, f.err
}

// fakeAnalysis returns a fixed analysis completion.
type fakeAnalysis struct {
	out string
	err error
}

func (f *fakeAnalysis) CompleteAnalysis(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return f.out, f.err
}

func newTestAgent(repo *fakeRepo, chat llm.ChatClient) *Agent {
	return New(Deps{
		Repo: repo,
		Chat: chat,
	})
}

func scored(id, text string, score float64) types.SearchResult {
	return types.SearchResult{
		Memory: &types.Memory{
			ID:         id,
			Content:    types.Content{Text: text},
			MemoryType: types.TypeEpisodic,
		},
		Score: score,
	}
}
