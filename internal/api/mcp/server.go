package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/agent"
	"github.com/gregpriday/memory-mcp/internal/files"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

const (
	serverName      = "memory-mcp"
	serverVersion   = "1.0.0"
	protocolVersion = "2024-11-05"

	defaultIndexName = "default"

	inspectBeliefLimit = 10
	inspectGraphNodes  = 100
	inspectGraphEdges  = 200
)

// memoryAgent is the slice of the agent runtime the server drives.
type memoryAgent interface {
	Memorize(ctx context.Context, req agent.MemorizeRequest) (*agent.MemorizeResult, error)
	Recall(ctx context.Context, req agent.RecallRequest) (*agent.RecallResult, error)
	Forget(ctx context.Context, req agent.ForgetRequest) (*agent.ForgetResult, error)
	Refine(ctx context.Context, req agent.RefineRequest) (*agent.RefineResult, error)
}

// Server handles MCP requests, routing tool calls to the agent runtime
// or, for the LLM-free tools, straight to the repository.
type Server struct {
	agent        memoryAgent
	repo         storage.Repository
	files        *files.Loader
	log          *zap.Logger
	defaultIndex string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *zap.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithDefaultIndex sets the index used when a tool call names none.
func WithDefaultIndex(index string) ServerOption {
	return func(s *Server) {
		if index != "" {
			s.defaultIndex = index
		}
	}
}

// WithFiles sets the loader used for file ingestion and project
// system-message resolution.
func WithFiles(loader *files.Loader) ServerOption {
	return func(s *Server) { s.files = loader }
}

// NewServer creates an MCP server over the given agent and repository.
func NewServer(a memoryAgent, repo storage.Repository, opts ...ServerOption) *Server {
	s := &Server{
		agent:        a,
		repo:         repo,
		log:          zap.NewNop(),
		defaultIndex: defaultIndexName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest dispatches a single JSON-RPC request. A nil response
// means the request was a notification and nothing should be written.
func (s *Server) HandleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, ErrCodeInvalidRequest, "unsupported jsonrpc version")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  MCPToolsListResult{Tools: s.toolDefinitions()},
		}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	}

	// Tool names double as direct JSON-RPC methods for clients that
	// skip the tools/call envelope.
	if s.isTool(req.Method) {
		result, err := s.callTool(ctx, req.Method, req.Params)
		if err != nil {
			return errorResponse(req.ID, ErrCodeServerError, err.Error())
		}
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	}

	return errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
}

func (s *Server) handleInitialize(req *JSONRPCRequest) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: MCPInitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
			ServerInfo:      MCPServerInfo{Name: serverName, Version: serverVersion},
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return errorResponse(req.ID, ErrCodeInvalidParams, "invalid tool call parameters")
	}
	var params MCPToolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return errorResponse(req.ID, ErrCodeInvalidParams, "invalid tool call parameters")
	}
	if !s.isTool(params.Name) {
		return errorResponse(req.ID, ErrCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: MCPToolCallResult{
				Content: []MCPToolCallContent{{Type: "text", Text: err.Error()}},
				IsError: true,
			},
		}
	}

	text, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, ErrCodeInternalError, "failed to encode tool result")
	}
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
		},
	}
}

func (s *Server) isTool(name string) bool {
	switch name {
	case "memorize", "recall", "forget", "refine_memories",
		"scan_memories", "create_index", "list_indexes", "inspect_character":
		return true
	}
	return false
}

// callTool decodes the arguments for one tool and runs it. params may
// be a map (tools/call) or any JSON-marshalable value (direct call).
func (s *Server) callTool(ctx context.Context, name string, params interface{}) (interface{}, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	switch name {
	case "memorize":
		return s.toolMemorize(ctx, raw)
	case "recall":
		return s.toolRecall(ctx, raw)
	case "forget":
		return s.toolForget(ctx, raw)
	case "refine_memories":
		return s.toolRefine(ctx, raw)
	case "scan_memories":
		return s.toolScan(ctx, raw)
	case "create_index":
		return s.toolCreateIndex(ctx, raw)
	case "list_indexes":
		return s.toolListIndexes(ctx)
	case "inspect_character":
		return s.toolInspect(ctx, raw)
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

func (s *Server) toolMemorize(ctx context.Context, raw []byte) (interface{}, error) {
	var args MemorizeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid memorize arguments: %w", err)
	}
	if strings.TrimSpace(args.Input) == "" && len(args.Files) == 0 {
		return nil, fmt.Errorf("memorize requires input text or files")
	}

	prompt, err := s.loadProjectPrompt(args.ProjectSystemMessagePath)
	if err != nil {
		return nil, err
	}
	return s.agent.Memorize(ctx, agent.MemorizeRequest{
		Input:         args.Input,
		Files:         args.Files,
		Index:         s.resolveIndex(args.Index),
		Metadata:      args.Metadata,
		Force:         args.Force,
		ProjectPrompt: prompt,
	})
}

func (s *Server) toolRecall(ctx context.Context, raw []byte) (interface{}, error) {
	var args RecallArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid recall arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("recall requires a query")
	}
	prompt, err := s.loadProjectPrompt(args.ProjectSystemMessagePath)
	if err != nil {
		return nil, err
	}
	return s.agent.Recall(ctx, agent.RecallRequest{
		Query:            args.Query,
		Index:            s.resolveIndex(args.Index),
		Limit:            args.Limit,
		Filters:          args.Filters,
		FilterExpression: args.FilterExpression,
		ResponseMode:     args.ResponseMode,
		ProjectPrompt:    prompt,
	})
}

func (s *Server) toolForget(ctx context.Context, raw []byte) (interface{}, error) {
	var args ForgetArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid forget arguments: %w", err)
	}
	if strings.TrimSpace(args.Input) == "" && len(args.ExplicitMemoryIDs) == 0 {
		return nil, fmt.Errorf("forget requires input text or explicit memory ids")
	}
	prompt, err := s.loadProjectPrompt(args.ProjectSystemMessagePath)
	if err != nil {
		return nil, err
	}
	return s.agent.Forget(ctx, agent.ForgetRequest{
		Input:             args.Input,
		Index:             s.resolveIndex(args.Index),
		Filters:           args.Filters,
		DryRun:            args.DryRun,
		ExplicitMemoryIDs: args.ExplicitMemoryIDs,
		ProjectPrompt:     prompt,
	})
}

func (s *Server) toolRefine(ctx context.Context, raw []byte) (interface{}, error) {
	var args RefineArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid refine arguments: %w", err)
	}
	prompt, err := s.loadProjectPrompt(args.ProjectSystemMessagePath)
	if err != nil {
		return nil, err
	}
	return s.agent.Refine(ctx, agent.RefineRequest{
		Operation:     args.Operation,
		Scope:         args.Scope,
		Budget:        args.Budget,
		DryRun:        args.DryRun,
		Index:         s.resolveIndex(args.Index),
		ProjectPrompt: prompt,
	})
}

// toolScan is the LLM-free search path: one embedding lookup, no agent
// loop, diagnostics included in the response.
func (s *Server) toolScan(ctx context.Context, raw []byte) (interface{}, error) {
	var args ScanArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid scan arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("scan requires a query")
	}

	index := s.resolveIndex(args.Index)
	var diags []types.SearchDiagnostics
	results, err := s.repo.SearchMemories(ctx, index, args.Query, storage.SearchOptions{
		Limit:              args.Limit,
		FilterExpression:   args.FilterExpression,
		MinScore:           args.MinScore,
		SkipAccessTracking: true,
		Diagnostics: func(d types.SearchDiagnostics) {
			diags = append(diags, d)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return map[string]interface{}{
		"index":       index,
		"results":     results,
		"count":       len(results),
		"diagnostics": diags,
	}, nil
}

func (s *Server) toolCreateIndex(ctx context.Context, raw []byte) (interface{}, error) {
	var args CreateIndexArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid create_index arguments: %w", err)
	}
	if strings.TrimSpace(args.Name) == "" {
		return nil, fmt.Errorf("create_index requires a name")
	}
	idx, err := s.repo.EnsureIndex(ctx, args.Name, args.Description)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return idx, nil
}

func (s *Server) toolListIndexes(ctx context.Context) (interface{}, error) {
	indexes, err := s.repo.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return map[string]interface{}{
		"indexes": indexes,
		"count":   len(indexes),
	}, nil
}

// toolInspect aggregates every introspection view into one report.
// Partial failures degrade the report instead of failing it.
func (s *Server) toolInspect(ctx context.Context, raw []byte) (interface{}, error) {
	var args InspectArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid inspect arguments: %w", err)
	}
	index := s.resolveIndex(args.Index)

	report := &storage.CharacterReport{Index: index}

	dist, err := s.repo.GetTypeDistribution(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("type distribution: %w", err)
	}
	report.TypeDistribution = dist

	if beliefs, err := s.repo.GetTopBeliefs(ctx, index, inspectBeliefLimit); err != nil {
		s.log.Warn("top beliefs unavailable", zap.String("index", index), zap.Error(err))
	} else {
		report.TopBeliefs = beliefs
	}
	if emotions, err := s.repo.GetEmotionMap(ctx, index); err != nil {
		s.log.Warn("emotion map unavailable", zap.String("index", index), zap.Error(err))
	} else {
		report.Emotions = emotions
	}
	if graph, err := s.repo.GetRelationshipGraph(ctx, index, inspectGraphNodes, inspectGraphEdges); err != nil {
		s.log.Warn("relationship graph unavailable", zap.String("index", index), zap.Error(err))
	} else {
		report.Graph = graph
	}
	if health, err := s.repo.GetPriorityHealth(ctx, index); err != nil {
		s.log.Warn("priority health unavailable", zap.String("index", index), zap.Error(err))
	} else {
		report.Priority = health
	}

	return report, nil
}

// resolveIndex picks the target index for a tool call. The caller
// chooses the index, never the model.
func (s *Server) resolveIndex(requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return s.defaultIndex
}

// loadProjectPrompt reads an optional per-project system message from
// inside the file-access root.
func (s *Server) loadProjectPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	if s.files == nil {
		return "", fmt.Errorf("project system message requested but file access is not configured")
	}
	content, err := s.files.Read(path)
	if err != nil {
		return "", fmt.Errorf("project system message: %w", err)
	}
	return content, nil
}
