// Package mcp exposes the memory operations over the Model Context
// Protocol: line-delimited JSON-RPC 2.0 on stdio.
package mcp

import (
	"encoding/json"
	"strings"
)

// JSONRPCRequest is a JSON-RPC 2.0 request frame.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response frame.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError carries a JSON-RPC error object.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// MCPServerInfo identifies this server in the initialize handshake.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPInitializeResult is the initialize response.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes one callable tool for tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the tools/list response.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters of a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is one content block of a tool-call result.
type MCPToolCallContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCPToolCallResult is the tools/call response body.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}

// FlexStrings decodes a string list from any of the shapes MCP clients
// actually send: a proper JSON array, a JSON-encoded array inside a
// string, or a comma-separated string.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*f = direct
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unrecognized shape: treat as absent rather than failing the
		// whole request.
		*f = nil
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = nil
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var nested []string
		if err := json.Unmarshal([]byte(s), &nested); err == nil {
			*f = nested
			return nil
		}
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	*f = parts
	return nil
}

// MemorizeArgs are the arguments of the memorize tool.
type MemorizeArgs struct {
	Input                    string                 `json:"input"`
	Files                    FlexStrings            `json:"files,omitempty"`
	Index                    string                 `json:"index,omitempty"`
	ProjectSystemMessagePath string                 `json:"projectSystemMessagePath,omitempty"`
	Metadata                 map[string]interface{} `json:"metadata,omitempty"`
	Force                    bool                   `json:"force,omitempty"`
}

// RecallArgs are the arguments of the recall tool.
type RecallArgs struct {
	Query                    string                 `json:"query"`
	Index                    string                 `json:"index,omitempty"`
	Limit                    int                    `json:"limit,omitempty"`
	Filters                  map[string]interface{} `json:"filters,omitempty"`
	FilterExpression         string                 `json:"filterExpression,omitempty"`
	ResponseMode             string                 `json:"responseMode,omitempty"`
	ProjectSystemMessagePath string                 `json:"projectSystemMessagePath,omitempty"`
}

// ForgetArgs are the arguments of the forget tool.
type ForgetArgs struct {
	Input                    string                 `json:"input"`
	Index                    string                 `json:"index,omitempty"`
	Filters                  map[string]interface{} `json:"filters,omitempty"`
	DryRun                   *bool                  `json:"dryRun,omitempty"`
	ExplicitMemoryIDs        FlexStrings            `json:"explicitMemoryIds,omitempty"`
	ProjectSystemMessagePath string                 `json:"projectSystemMessagePath,omitempty"`
}

// RefineArgs are the arguments of the refine_memories tool.
type RefineArgs struct {
	Operation                string                 `json:"operation,omitempty"`
	Scope                    map[string]interface{} `json:"scope,omitempty"`
	Budget                   int                    `json:"budget,omitempty"`
	DryRun                   *bool                  `json:"dryRun,omitempty"`
	Index                    string                 `json:"index,omitempty"`
	ProjectSystemMessagePath string                 `json:"projectSystemMessagePath,omitempty"`
}

// ScanArgs are the arguments of the scan_memories tool, the LLM-free
// direct search.
type ScanArgs struct {
	Query            string  `json:"query"`
	Index            string  `json:"index,omitempty"`
	Limit            int     `json:"limit,omitempty"`
	FilterExpression string  `json:"filterExpression,omitempty"`
	MinScore         float64 `json:"minScore,omitempty"`
}

// CreateIndexArgs are the arguments of the create_index tool.
type CreateIndexArgs struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// InspectArgs are the arguments of the inspect_character tool.
type InspectArgs struct {
	Index string `json:"index,omitempty"`
}
