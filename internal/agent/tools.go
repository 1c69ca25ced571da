package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/internal/validate"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Per-call caps.
const (
	maxSearchLimitPerCall = 100
	maxUpsertPerCall      = 50
)

type toolHandler func(ctx context.Context, rc *RequestContext, args json.RawMessage) string

type toolDef struct {
	name        string
	description string
	parameters  map[string]interface{}
	modes       map[Mode]bool
	handler     toolHandler
}

var allModes = map[Mode]bool{ModeNormal: true, ModeForgetDryRun: true, ModeRefinementPlanning: true}
var writeModes = map[Mode]bool{ModeNormal: true}

func (a *Agent) catalog() []toolDef {
	return []toolDef{
		{
			name:        "search_memories",
			description: "Semantic search over stored memories. Returns scored matches.",
			parameters: objectSchema(map[string]interface{}{
				"query":            stringProp("Natural-language search query"),
				"limit":            intProp("Maximum results, capped at 100"),
				"filterExpression": stringProp("Optional filter, e.g. @metadata.topic = \"work\""),
			}, "query"),
			modes:   allModes,
			handler: a.handleSearch,
		},
		{
			name:        "get_memories",
			description: "Fetch memories by ID, including their relationships.",
			parameters: objectSchema(map[string]interface{}{
				"ids": stringArrayProp("Memory IDs to fetch"),
			}, "ids"),
			modes:   allModes,
			handler: a.handleGet,
		},
		{
			name:        "upsert_memories",
			description: "Store new memories or update existing ones. At most 50 per call.",
			parameters: objectSchema(map[string]interface{}{
				"memories": map[string]interface{}{
					"type":        "array",
					"description": "Memories to store",
					"items": objectSchema(map[string]interface{}{
						"id":         stringProp("Existing memory ID to update; omit to create"),
						"text":       stringProp("The memory text"),
						"memoryType": stringProp("self, belief, pattern, episodic, or semantic"),
						"timestamp":  stringProp("When the remembered event happened, ISO-8601"),
						"metadata":   map[string]interface{}{"type": "object", "description": "Additional metadata"},
					}, "text"),
				},
			}, "memories"),
			modes:   writeModes,
			handler: a.handleUpsert,
		},
		{
			name:        "delete_memories",
			description: "Permanently delete memories by ID. System memories are skipped.",
			parameters: objectSchema(map[string]interface{}{
				"ids": stringArrayProp("Memory IDs to delete"),
			}, "ids"),
			modes:   writeModes,
			handler: a.handleDelete,
		},
		{
			name:        "read_file",
			description: "Read a text file relative to the project root.",
			parameters: objectSchema(map[string]interface{}{
				"path": stringProp("Relative file path"),
			}, "path"),
			modes:   allModes,
			handler: a.handleReadFile,
		},
		{
			name:        "analyze_text",
			description: "Analyze a block of text for key facts and themes.",
			parameters: objectSchema(map[string]interface{}{
				"text":  stringProp("Text to analyze"),
				"focus": stringProp("Optional aspect to focus on"),
			}, "text"),
			modes:   allModes,
			handler: a.handleAnalyzeText,
		},
	}
}

// toolsFor returns the LLM-facing catalog for a mode. Gated tools are
// omitted entirely so the model never sees what it cannot call.
func (a *Agent) toolsFor(mode Mode) []llm.Tool {
	var tools []llm.Tool
	for _, def := range a.catalog() {
		if !def.modes[mode] {
			continue
		}
		tools = append(tools, llm.Tool{
			Name:        def.name,
			Description: def.description,
			Parameters:  def.parameters,
		})
	}
	return tools
}

// dispatch runs one tool call and returns the tool-result payload.
// Problems come back as structured error results, never as Go errors:
// the model sees them and can adapt.
func (a *Agent) dispatch(ctx context.Context, rc *RequestContext, call llm.ToolCall) string {
	for _, def := range a.catalog() {
		if def.name != call.Name {
			continue
		}
		if !def.modes[rc.Mode] {
			msg := fmt.Sprintf("tool %s is not available in %s mode", call.Name, rc.Mode)
			rc.logTool(LogEntry{Tool: call.Name, ErrorMessage: msg})
			return errorResult(msg)
		}
		return def.handler(ctx, rc, json.RawMessage(call.Arguments))
	}
	msg := fmt.Sprintf("unknown tool: %s", call.Name)
	rc.logTool(LogEntry{Tool: call.Name, ErrorMessage: msg})
	return errorResult(msg)
}

func (a *Agent) handleSearch(ctx context.Context, rc *RequestContext, raw json.RawMessage) string {
	var args struct {
		Query            string `json:"query"`
		Limit            int    `json:"limit"`
		FilterExpression string `json:"filterExpression"`
		// The model sometimes invents an index; it is ignored.
		Index string `json:"index"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return a.badArgs(rc, "search_memories", err)
	}

	if rc.SearchIterations >= a.cfg.MaxSearchIterations {
		msg := ErrSearchBudgetExhausted.Error() + "; respond with your final answer using what you have found"
		rc.logTool(LogEntry{Tool: "search_memories", ArgsSummary: args.Query, ErrorMessage: msg})
		return errorResult(msg)
	}
	rc.SearchIterations++

	limit := args.Limit
	if limit <= 0 {
		limit = storage.DefaultSearchLimit
	}
	if limit > maxSearchLimitPerCall {
		limit = maxSearchLimitPerCall
	}

	opts := storage.SearchOptions{
		Limit:              limit,
		FilterExpression:   args.FilterExpression,
		SkipAccessTracking: rc.Mode != ModeNormal,
		Diagnostics: func(d types.SearchDiagnostics) {
			rc.SearchDiagnostics = append(rc.SearchDiagnostics, d)
		},
	}
	if rc.Forget != nil {
		opts.MinScore = rc.Forget.Threshold()
	}

	results, err := a.repo.SearchMemories(ctx, rc.Index, args.Query, opts)
	if err != nil {
		rc.logTool(LogEntry{Tool: "search_memories", ArgsSummary: args.Query, ErrorMessage: err.Error()})
		return errorResult(err.Error())
	}

	ids := make([]string, 0, len(results))
	items := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Memory.ID)
		if rc.Mode == ModeNormal {
			rc.TrackedMemoryIDs[r.Memory.ID] = true
		}
		items = append(items, searchResultPayload(r))
	}
	rc.logTool(LogEntry{
		Tool:            "search_memories",
		ArgsSummary:     summarize(args.Query),
		ResultSummary:   fmt.Sprintf("%d results", len(results)),
		MemoriesCount:   len(results),
		SearchResultIDs: ids,
	})

	return jsonResult(map[string]interface{}{
		"results":           items,
		"count":             len(results),
		"searchesRemaining": a.cfg.MaxSearchIterations - rc.SearchIterations,
	})
}

func (a *Agent) handleGet(ctx context.Context, rc *RequestContext, raw json.RawMessage) string {
	var args struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return a.badArgs(rc, "get_memories", err)
	}
	if len(args.IDs) == 0 {
		return errorResult("get_memories requires at least one ID")
	}

	memories, err := a.repo.GetMemories(ctx, rc.Index, args.IDs)
	if err != nil {
		rc.logTool(LogEntry{Tool: "get_memories", ErrorMessage: err.Error()})
		return errorResult(err.Error())
	}

	items := make([]map[string]interface{}, 0, len(memories))
	for _, m := range memories {
		if rc.Mode == ModeNormal {
			rc.TrackedMemoryIDs[m.ID] = true
		}
		items = append(items, memoryPayload(m))
	}
	rc.logTool(LogEntry{
		Tool:          "get_memories",
		ArgsSummary:   summarize(strings.Join(args.IDs, ",")),
		ResultSummary: fmt.Sprintf("%d memories", len(memories)),
		MemoriesCount: len(memories),
	})
	return jsonResult(map[string]interface{}{"memories": items, "count": len(items)})
}

type upsertItem struct {
	ID         string                 `json:"id"`
	Text       string                 `json:"text"`
	MemoryType string                 `json:"memoryType"`
	Timestamp  string                 `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (a *Agent) handleUpsert(ctx context.Context, rc *RequestContext, raw json.RawMessage) string {
	var args struct {
		Memories []upsertItem `json:"memories"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return a.badArgs(rc, "upsert_memories", err)
	}
	if len(args.Memories) == 0 {
		return errorResult("upsert_memories requires at least one memory")
	}
	if len(args.Memories) > maxUpsertPerCall {
		return errorResult(fmt.Sprintf("too many memories in one call: %d (max %d); split the batch", len(args.Memories), maxUpsertPerCall))
	}

	var items []*types.Memory
	var warnings []string
	for i, item := range args.Memories {
		md := item.Metadata
		if md == nil {
			md = map[string]interface{}{}
		}
		if strings.TrimSpace(item.Text) == "" {
			warnings = append(warnings, fmt.Sprintf("memory %d: empty text, skipped", i))
			continue
		}
		if item.MemoryType != "" {
			if !types.IsValidMemoryType(item.MemoryType) {
				warnings = append(warnings, fmt.Sprintf("memory %d: unknown memoryType %q, skipped", i, item.MemoryType))
				continue
			}
			md["memoryType"] = item.MemoryType
		}
		if item.Timestamp != "" {
			ts := validate.Timestamp(item.Timestamp)
			if !ts.Valid {
				if !rc.ForceValidationBypass {
					warnings = append(warnings, fmt.Sprintf("memory %d: invalid timestamp %q, skipped", i, item.Timestamp))
					continue
				}
				msg := fmt.Sprintf("memory %d: invalid timestamp %q ignored (validation bypassed)", i, item.Timestamp)
				warnings = append(warnings, msg)
				rc.ValidationMessages = append(rc.ValidationMessages, msg)
			} else {
				md["timestamp"] = ts.Normalized
				if ts.Warning != "" {
					rc.ValidationMessages = append(rc.ValidationMessages, fmt.Sprintf("memory %d: %s", i, ts.Warning))
				}
			}
		}
		items = append(items, &types.Memory{
			ID:       item.ID,
			Content:  types.Content{Text: item.Text},
			Metadata: md,
		})
	}
	if len(items) == 0 {
		rc.logTool(LogEntry{Tool: "upsert_memories", ErrorMessage: "no valid memories in batch"})
		return jsonResult(map[string]interface{}{"storedIds": []string{}, "storedCount": 0, "warnings": warnings})
	}

	ids, err := a.repo.UpsertMemories(ctx, rc.Index, items, nil)
	if err != nil {
		rc.logTool(LogEntry{Tool: "upsert_memories", ErrorMessage: err.Error()})
		return errorResult(err.Error())
	}
	rc.StoredMemoryIDs = append(rc.StoredMemoryIDs, ids...)
	rc.logTool(LogEntry{
		Tool:          "upsert_memories",
		ResultSummary: fmt.Sprintf("stored %d", len(ids)),
		MemoriesCount: len(ids),
		StoredIDs:     ids,
	})
	return jsonResult(map[string]interface{}{"storedIds": ids, "storedCount": len(ids), "warnings": warnings})
}

func (a *Agent) handleDelete(ctx context.Context, rc *RequestContext, raw json.RawMessage) string {
	var args struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return a.badArgs(rc, "delete_memories", err)
	}

	var deletable, skipped []string
	for _, id := range args.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if strings.HasPrefix(id, types.SystemIDPrefix) {
			skipped = append(skipped, id)
			continue
		}
		deletable = append(deletable, id)
	}

	// The prefix only covers IDs the system minted itself. Memories
	// carrying source "system" are protected too, so look them up.
	if len(deletable) > 0 {
		existing, err := a.repo.GetMemories(ctx, rc.Index, deletable)
		if err != nil {
			rc.logTool(LogEntry{Tool: "delete_memories", ErrorMessage: err.Error()})
			return errorResult(err.Error())
		}
		systemSourced := make(map[string]bool)
		for _, m := range existing {
			if m.IsSystem() {
				systemSourced[m.ID] = true
			}
		}
		kept := deletable[:0]
		for _, id := range deletable {
			if systemSourced[id] {
				skipped = append(skipped, id)
				continue
			}
			kept = append(kept, id)
		}
		deletable = kept
	}

	deleted := 0
	if len(deletable) > 0 {
		n, err := a.repo.DeleteMemories(ctx, rc.Index, deletable)
		if err != nil {
			rc.logTool(LogEntry{Tool: "delete_memories", ErrorMessage: err.Error()})
			return errorResult(err.Error())
		}
		deleted = n
	}
	rc.DeletedCount += deleted
	rc.logTool(LogEntry{
		Tool:          "delete_memories",
		ArgsSummary:   summarize(strings.Join(args.IDs, ",")),
		ResultSummary: fmt.Sprintf("deleted %d, skipped %d system", deleted, len(skipped)),
		MemoriesCount: deleted,
	})
	return jsonResult(map[string]interface{}{
		"deletedCount":       deleted,
		"skippedSystemCount": len(skipped),
		"skippedSystemIds":   skipped,
	})
}

func (a *Agent) handleReadFile(ctx context.Context, rc *RequestContext, raw json.RawMessage) string {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return a.badArgs(rc, "read_file", err)
	}
	if a.files == nil {
		return errorResult("file access is not configured")
	}

	content, err := a.files.Read(args.Path)
	if err != nil {
		rc.logTool(LogEntry{Tool: "read_file", ArgsSummary: args.Path, ErrorMessage: err.Error()})
		return errorResult(err.Error())
	}
	rc.logTool(LogEntry{
		Tool:          "read_file",
		ArgsSummary:   args.Path,
		ResultSummary: fmt.Sprintf("%d bytes", len(content)),
	})
	return jsonResult(map[string]interface{}{"path": args.Path, "content": content})
}

func (a *Agent) handleAnalyzeText(ctx context.Context, rc *RequestContext, raw json.RawMessage) string {
	var args struct {
		Text  string `json:"text"`
		Focus string `json:"focus"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return a.badArgs(rc, "analyze_text", err)
	}
	if strings.TrimSpace(args.Text) == "" {
		return errorResult("analyze_text requires non-empty text")
	}

	user := args.Text
	if args.Focus != "" {
		user = "Focus on: " + args.Focus + "\n\n" + args.Text
	}
	analysis, err := a.analysis.CompleteAnalysis(ctx, llm.TextAnalysisPrompt, user, llm.DefaultAnalysisMaxTokens)
	if err != nil {
		rc.logTool(LogEntry{Tool: "analyze_text", ErrorMessage: err.Error()})
		return errorResult(err.Error())
	}
	rc.logTool(LogEntry{
		Tool:          "analyze_text",
		ArgsSummary:   summarize(args.Text),
		ResultSummary: summarize(analysis),
	})
	return jsonResult(map[string]interface{}{"analysis": analysis})
}

func (a *Agent) badArgs(rc *RequestContext, tool string, err error) string {
	msg := fmt.Sprintf("invalid JSON arguments for %s: %v", tool, err)
	rc.logTool(LogEntry{Tool: tool, ErrorMessage: msg})
	a.log.Warn("bad tool arguments", zap.String("tool", tool), zap.Error(err))
	return errorResult(msg)
}

// Payload helpers. Embeddings never leave the repository layer.

func memoryPayload(m *types.Memory) map[string]interface{} {
	payload := map[string]interface{}{
		"id":         m.ID,
		"text":       m.Content.Text,
		"memoryType": string(m.MemoryType),
		"kind":       string(m.Kind),
		"importance": string(m.Importance),
		"topic":      m.Topic,
		"tags":       m.Tags,
		"timestamp":  m.Content.Timestamp,
		"priority":   m.Dynamics.CurrentPriority,
	}
	if len(m.Relationships) > 0 {
		rels := make([]map[string]interface{}, 0, len(m.Relationships))
		for _, r := range m.Relationships {
			rels = append(rels, map[string]interface{}{
				"targetId": r.TargetID,
				"type":     string(r.Type),
			})
		}
		payload["relationships"] = rels
	}
	return payload
}

func searchResultPayload(r types.SearchResult) map[string]interface{} {
	payload := memoryPayload(r.Memory)
	payload["score"] = r.Score
	return payload
}

func errorResult(msg string) string {
	return jsonResult(map[string]interface{}{"error": msg})
}

func jsonResult(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error": "failed to encode tool result"}`
	}
	return string(data)
}

func summarize(s string) string {
	const max = 120
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}

// JSON Schema helpers for tool parameter declarations.

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func stringArrayProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}
