package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregpriday/memory-mcp/internal/agent"
	"github.com/gregpriday/memory-mcp/internal/files"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// fakeAgent records the requests it receives and returns canned
// results.
type fakeAgent struct {
	memorizeReq *agent.MemorizeRequest
	recallReq   *agent.RecallRequest
	forgetReq   *agent.ForgetRequest
	refineReq   *agent.RefineRequest

	memorizeResult *agent.MemorizeResult
	recallResult   *agent.RecallResult
	forgetResult   *agent.ForgetResult
	refineResult   *agent.RefineResult
	err            error
}

func (f *fakeAgent) Memorize(ctx context.Context, req agent.MemorizeRequest) (*agent.MemorizeResult, error) {
	f.memorizeReq = &req
	return f.memorizeResult, f.err
}

func (f *fakeAgent) Recall(ctx context.Context, req agent.RecallRequest) (*agent.RecallResult, error) {
	f.recallReq = &req
	return f.recallResult, f.err
}

func (f *fakeAgent) Forget(ctx context.Context, req agent.ForgetRequest) (*agent.ForgetResult, error) {
	f.forgetReq = &req
	return f.forgetResult, f.err
}

func (f *fakeAgent) Refine(ctx context.Context, req agent.RefineRequest) (*agent.RefineResult, error) {
	f.refineReq = &req
	return f.refineResult, f.err
}

// fakeRepo scripts the repository surface the server touches directly.
// The embedded interface panics on anything else.
type fakeRepo struct {
	storage.Repository

	searchResults []types.SearchResult
	searchOpts    *storage.SearchOptions
	searchQuery   string
	searchIndex   string

	indexes     []types.MemoryIndex
	ensuredName string
	ensuredDesc string
	typeDist    []storage.TypeCount
	beliefs     []storage.BeliefSummary
	emotions    []storage.EmotionStat
	graph       *storage.GraphSnapshot
	health      *storage.PriorityHealth
}

func (f *fakeRepo) SearchMemories(ctx context.Context, index, query string, opts storage.SearchOptions) ([]types.SearchResult, error) {
	f.searchIndex = index
	f.searchQuery = query
	f.searchOpts = &opts
	if opts.Diagnostics != nil {
		opts.Diagnostics(types.SearchDiagnostics{Query: query, IndexName: index, ResultCount: len(f.searchResults)})
	}
	return f.searchResults, nil
}

func (f *fakeRepo) EnsureIndex(ctx context.Context, name, description string) (*types.MemoryIndex, error) {
	f.ensuredName = name
	f.ensuredDesc = description
	return &types.MemoryIndex{ID: 1, Name: name, Description: description}, nil
}

func (f *fakeRepo) ListIndexes(ctx context.Context) ([]types.MemoryIndex, error) {
	return f.indexes, nil
}

func (f *fakeRepo) GetTypeDistribution(ctx context.Context, index string) ([]storage.TypeCount, error) {
	return f.typeDist, nil
}

func (f *fakeRepo) GetTopBeliefs(ctx context.Context, index string, limit int) ([]storage.BeliefSummary, error) {
	return f.beliefs, nil
}

func (f *fakeRepo) GetEmotionMap(ctx context.Context, index string) ([]storage.EmotionStat, error) {
	return f.emotions, nil
}

func (f *fakeRepo) GetRelationshipGraph(ctx context.Context, index string, maxNodes, maxEdges int) (*storage.GraphSnapshot, error) {
	return f.graph, nil
}

func (f *fakeRepo) GetPriorityHealth(ctx context.Context, index string) (*storage.PriorityHealth, error) {
	return f.health, nil
}

func request(t *testing.T, method string, params interface{}) *JSONRPCRequest {
	t.Helper()
	return &JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
}

func toolCall(t *testing.T, name string, args map[string]interface{}) *JSONRPCRequest {
	t.Helper()
	return request(t, "tools/call", MCPToolCallParams{Name: name, Arguments: args})
}

// toolResult decodes the text content of a tools/call response into v.
func toolResult(t *testing.T, resp *JSONRPCResponse, v interface{}) MCPToolCallResult {
	t.Helper()
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(MCPToolCallResult)
	require.True(t, ok, "result is %T", resp.Result)
	require.Len(t, result.Content, 1)
	if v != nil {
		require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), v))
	}
	return result
}

func TestInitialize(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	resp := s.HandleRequest(context.Background(), request(t, "initialize", nil))

	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(MCPInitializeResult)
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", result.ProtocolVersion)
	assert.Equal(t, "memory-mcp", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestInitializedNotificationGetsNoResponse(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	assert.Nil(t, s.HandleRequest(context.Background(), request(t, "notifications/initialized", nil)))
}

func TestInvalidJSONRPCVersion(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	resp := s.HandleRequest(context.Background(), &JSONRPCRequest{JSONRPC: "1.0", ID: 1, Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	resp := s.HandleRequest(context.Background(), request(t, "no_such_method", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestToolsList(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	resp := s.HandleRequest(context.Background(), request(t, "tools/list", nil))

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(MCPToolsListResult)
	require.True(t, ok)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.ElementsMatch(t, []string{
		"memorize", "recall", "forget", "refine_memories",
		"scan_memories", "create_index", "list_indexes", "inspect_character",
	}, names)
}

func TestToolsCallUnknownTool(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	resp := s.HandleRequest(context.Background(), toolCall(t, "no_such_tool", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestMemorizeRoutesToAgent(t *testing.T) {
	fa := &fakeAgent{memorizeResult: &agent.MemorizeResult{Status: "STORED", StoredCount: 1, MemoryIDs: []string{"mem_1"}}}
	s := NewServer(fa, &fakeRepo{}, WithDefaultIndex("alice"))

	resp := s.HandleRequest(context.Background(), toolCall(t, "memorize", map[string]interface{}{
		"input": "remember this",
		"force": true,
	}))

	var result agent.MemorizeResult
	toolResult(t, resp, &result)
	assert.Equal(t, "STORED", result.Status)

	require.NotNil(t, fa.memorizeReq)
	assert.Equal(t, "remember this", fa.memorizeReq.Input)
	assert.True(t, fa.memorizeReq.Force)
	// No index in the call: the server's default applies.
	assert.Equal(t, "alice", fa.memorizeReq.Index)
}

func TestMemorizeRequiresInputOrFiles(t *testing.T) {
	s := NewServer(&fakeAgent{}, &fakeRepo{})
	resp := s.HandleRequest(context.Background(), toolCall(t, "memorize", map[string]interface{}{}))

	result := toolResult(t, resp, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "input text or files")
}

func TestRecallRoutesToAgent(t *testing.T) {
	fa := &fakeAgent{recallResult: &agent.RecallResult{Status: "ok", Answer: "dark roast"}}
	s := NewServer(fa, &fakeRepo{})

	resp := s.HandleRequest(context.Background(), toolCall(t, "recall", map[string]interface{}{
		"query":        "coffee?",
		"index":        "bob",
		"limit":        float64(5),
		"responseMode": "answer",
	}))

	var result agent.RecallResult
	toolResult(t, resp, &result)
	assert.Equal(t, "dark roast", result.Answer)

	require.NotNil(t, fa.recallReq)
	assert.Equal(t, "coffee?", fa.recallReq.Query)
	assert.Equal(t, "bob", fa.recallReq.Index)
	assert.Equal(t, 5, fa.recallReq.Limit)
	assert.Equal(t, "answer", fa.recallReq.ResponseMode)
}

func TestForgetPassesDryRunThrough(t *testing.T) {
	fa := &fakeAgent{forgetResult: &agent.ForgetResult{Status: "ok", DeletedCount: 1}}
	s := NewServer(fa, &fakeRepo{})

	resp := s.HandleRequest(context.Background(), toolCall(t, "forget", map[string]interface{}{
		"input":  "the obsolete stuff",
		"dryRun": false,
	}))

	toolResult(t, resp, nil)
	require.NotNil(t, fa.forgetReq)
	require.NotNil(t, fa.forgetReq.DryRun)
	assert.False(t, *fa.forgetReq.DryRun)
}

func TestForgetExplicitIDsFromCommaString(t *testing.T) {
	fa := &fakeAgent{forgetResult: &agent.ForgetResult{Status: "dry_run"}}
	s := NewServer(fa, &fakeRepo{})

	resp := s.HandleRequest(context.Background(), toolCall(t, "forget", map[string]interface{}{
		"explicitMemoryIds": "mem_1, mem_2",
	}))

	toolResult(t, resp, nil)
	require.NotNil(t, fa.forgetReq)
	assert.Equal(t, []string{"mem_1", "mem_2"}, fa.forgetReq.ExplicitMemoryIDs)
}

func TestProjectPromptReachesEveryOperation(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "prompt.md"), []byte("project context here"), 0o644))
	loader, err := files.NewLoader(root)
	require.NoError(t, err)

	fa := &fakeAgent{
		memorizeResult: &agent.MemorizeResult{Status: "ok"},
		recallResult:   &agent.RecallResult{Status: "ok"},
		forgetResult:   &agent.ForgetResult{Status: "dry_run"},
		refineResult:   &agent.RefineResult{Status: "dry_run"},
	}
	s := NewServer(fa, &fakeRepo{}, WithFiles(loader))

	calls := []struct {
		tool string
		args map[string]interface{}
	}{
		{"memorize", map[string]interface{}{"input": "x"}},
		{"recall", map[string]interface{}{"query": "q"}},
		{"forget", map[string]interface{}{"input": "x"}},
		{"refine_memories", map[string]interface{}{}},
	}
	for _, c := range calls {
		c.args["projectSystemMessagePath"] = "prompt.md"
		toolResult(t, s.HandleRequest(context.Background(), toolCall(t, c.tool, c.args)), nil)
	}

	require.NotNil(t, fa.memorizeReq)
	assert.Equal(t, "project context here", fa.memorizeReq.ProjectPrompt)
	require.NotNil(t, fa.recallReq)
	assert.Equal(t, "project context here", fa.recallReq.ProjectPrompt)
	require.NotNil(t, fa.forgetReq)
	assert.Equal(t, "project context here", fa.forgetReq.ProjectPrompt)
	require.NotNil(t, fa.refineReq)
	assert.Equal(t, "project context here", fa.refineReq.ProjectPrompt)
}

func TestProjectPromptWithoutLoaderFails(t *testing.T) {
	s := NewServer(&fakeAgent{forgetResult: &agent.ForgetResult{}}, &fakeRepo{})

	resp := s.HandleRequest(context.Background(), toolCall(t, "forget", map[string]interface{}{
		"input":                    "x",
		"projectSystemMessagePath": "prompt.md",
	}))
	result := toolResult(t, resp, nil)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "file access")
}

func TestRefineRoutesToAgent(t *testing.T) {
	fa := &fakeAgent{refineResult: &agent.RefineResult{Status: "dry_run", Operation: "consolidation"}}
	s := NewServer(fa, &fakeRepo{})

	resp := s.HandleRequest(context.Background(), toolCall(t, "refine_memories", map[string]interface{}{
		"operation": "consolidation",
		"budget":    float64(3),
	}))

	toolResult(t, resp, nil)
	require.NotNil(t, fa.refineReq)
	assert.Equal(t, "consolidation", fa.refineReq.Operation)
	assert.Equal(t, 3, fa.refineReq.Budget)
}

func TestScanSearchesDirectly(t *testing.T) {
	repo := &fakeRepo{searchResults: []types.SearchResult{
		{Memory: &types.Memory{ID: "mem_1", Content: types.Content{Text: "hit"}}, Score: 0.8},
	}}
	s := NewServer(&fakeAgent{}, repo, WithDefaultIndex("main"))

	resp := s.HandleRequest(context.Background(), toolCall(t, "scan_memories", map[string]interface{}{
		"query":    "anything",
		"minScore": 0.5,
	}))

	var result struct {
		Index       string                    `json:"index"`
		Count       int                       `json:"count"`
		Diagnostics []types.SearchDiagnostics `json:"diagnostics"`
	}
	toolResult(t, resp, &result)

	assert.Equal(t, "main", result.Index)
	assert.Equal(t, 1, result.Count)
	require.Len(t, result.Diagnostics, 1)

	require.NotNil(t, repo.searchOpts)
	assert.True(t, repo.searchOpts.SkipAccessTracking)
	assert.InDelta(t, 0.5, repo.searchOpts.MinScore, 1e-9)
}

func TestCreateIndex(t *testing.T) {
	repo := &fakeRepo{}
	s := NewServer(&fakeAgent{}, repo)

	resp := s.HandleRequest(context.Background(), toolCall(t, "create_index", map[string]interface{}{
		"name":        "alice",
		"description": "Alice's memories",
	}))

	var idx types.MemoryIndex
	toolResult(t, resp, &idx)
	assert.Equal(t, "alice", idx.Name)
	assert.Equal(t, "alice", repo.ensuredName)
	assert.Equal(t, "Alice's memories", repo.ensuredDesc)
}

func TestInspectCharacterAggregatesReport(t *testing.T) {
	repo := &fakeRepo{
		typeDist: []storage.TypeCount{{MemoryType: types.TypeEpisodic, Count: 4}},
		beliefs:  []storage.BeliefSummary{{ID: "mem_b", Text: "values honesty"}},
		health:   &storage.PriorityHealth{High: 2, Low: 1},
	}
	s := NewServer(&fakeAgent{}, repo)

	resp := s.HandleRequest(context.Background(), toolCall(t, "inspect_character", map[string]interface{}{
		"index": "alice",
	}))

	var report storage.CharacterReport
	toolResult(t, resp, &report)
	assert.Equal(t, "alice", report.Index)
	require.Len(t, report.TypeDistribution, 1)
	require.Len(t, report.TopBeliefs, 1)
	require.NotNil(t, report.Priority)
	assert.Equal(t, 2, report.Priority.High)
}

func TestDirectMethodCall(t *testing.T) {
	repo := &fakeRepo{indexes: []types.MemoryIndex{{Name: "main", MemoryCount: 7}}}
	s := NewServer(&fakeAgent{}, repo)

	resp := s.HandleRequest(context.Background(), request(t, "list_indexes", nil))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1, result["count"])
}
