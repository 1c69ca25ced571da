// Package llm provides the model clients the memory agent runs on: a
// tool-calling chat client for agent loops, a single-shot completion
// client for analysis and reflection, and a batched embedding client.
package llm

import "context"

// Token caps. Agent turns need room for tool arguments; analysis calls
// return compact JSON and get a tighter budget.
const (
	DefaultAgentMaxTokens    = 16384
	DefaultAnalysisMaxTokens = 4096
	MinAnalysisMaxTokens     = 2048
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FinishReason reports why the model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// Message is one turn of a chat conversation. Assistant turns may carry
// tool calls; tool turns echo the call ID they answer.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model request to invoke a named tool. Arguments is the
// raw JSON string exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a callable tool: name, description, and a JSON Schema
// object for its parameters.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ChatRequest is a single chat turn. Model overrides the client default
// when set. JSONMode asks the provider to emit a JSON object.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []Tool
	JSONMode    bool
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the assistant turn the model produced.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
}

// ChatClient runs tool-calling chat turns.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// SimpleChat runs a single system+user completion with no tools. Used
// for query expansion, text analysis, and reflection.
type SimpleChat interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Embedder turns texts into embedding vectors, one vector per input in
// the same order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
