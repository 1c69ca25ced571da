package mcp

func errorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}

func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func num(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

func boolean(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func strArray(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}
}

func obj(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": desc}
}

// toolDefinitions is the tools/list catalog.
func (s *Server) toolDefinitions() []MCPTool {
	return []MCPTool{
		{
			Name:        "memorize",
			Description: "Store information in long-term memory. The service decides what is worth keeping, deduplicates against existing memories, and extracts structured metadata.",
			InputSchema: schema(map[string]interface{}{
				"input":                    str("Text to remember"),
				"files":                    strArray("Relative file paths to ingest"),
				"index":                    str("Target memory index (defaults to the active index)"),
				"projectSystemMessagePath": str("Relative path to a project-specific system message"),
				"metadata":                 obj("Default metadata applied to stored memories"),
				"force":                    boolean("Bypass content validation and store as-is"),
			}),
		},
		{
			Name:        "recall",
			Description: "Answer a question from stored memories. Runs semantic search, lets the model select relevant memories, and synthesizes an answer.",
			InputSchema: schema(map[string]interface{}{
				"query":                    str("What to recall"),
				"index":                    str("Memory index to search (defaults to the active index)"),
				"limit":                    num("Maximum memories to consider"),
				"filters":                  obj("Structured metadata filters, e.g. {\"topic\": \"work\"}"),
				"filterExpression":         str("Filter DSL expression, e.g. @metadata.kind = \"raw\""),
				"responseMode":             str("One of: answer, memories, both (default both)"),
				"projectSystemMessagePath": str("Relative path to a project-specific system message"),
			}, "query"),
		},
		{
			Name:        "forget",
			Description: "Remove memories matching a description. Dry-run by default: the response lists what would be deleted without deleting it.",
			InputSchema: schema(map[string]interface{}{
				"input":                    str("Description of what to forget"),
				"index":                    str("Memory index (defaults to the active index)"),
				"filters":                  obj("Structured metadata filters narrowing the candidates"),
				"dryRun":                   boolean("Plan only, delete nothing (default true)"),
				"explicitMemoryIds":        strArray("Exact memory IDs to remove"),
				"projectSystemMessagePath": str("Relative path to a project-specific system message"),
			}),
		},
		{
			Name:        "refine_memories",
			Description: "Run memory maintenance: consolidation, decay, cleanup, or reflection. Dry-run by default.",
			InputSchema: schema(map[string]interface{}{
				"operation":                str("One of: consolidation, decay, cleanup, reflection (default consolidation)"),
				"scope":                    obj("Scope hints, e.g. {\"topic\": ..., \"minImportance\": ..., \"seedIds\": [...]}"),
				"budget":                   num("Maximum actions per run"),
				"dryRun":                   boolean("Plan only, apply nothing (default true)"),
				"index":                    str("Memory index (defaults to the active index)"),
				"projectSystemMessagePath": str("Relative path to a project-specific system message"),
			}),
		},
		{
			Name:        "scan_memories",
			Description: "Direct semantic search with no LLM involvement. Returns raw scored results and search diagnostics.",
			InputSchema: schema(map[string]interface{}{
				"query":            str("Search query"),
				"index":            str("Memory index (defaults to the active index)"),
				"limit":            num("Maximum results (default 10)"),
				"filterExpression": str("Filter DSL expression"),
				"minScore":         num("Drop results below this similarity"),
			}, "query"),
		},
		{
			Name:        "create_index",
			Description: "Create a memory index if it does not already exist.",
			InputSchema: schema(map[string]interface{}{
				"name":        str("Index name"),
				"description": str("Human-readable description"),
			}, "name"),
		},
		{
			Name:        "list_indexes",
			Description: "List all memory indexes with their memory counts.",
			InputSchema: schema(map[string]interface{}{}),
		},
		{
			Name:        "inspect_character",
			Description: "Introspection report for one index: memory-type distribution, top beliefs, emotion map, relationship graph, and priority health.",
			InputSchema: schema(map[string]interface{}{
				"index": str("Memory index (defaults to the active index)"),
			}),
		},
	}
}
