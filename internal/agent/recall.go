package agent

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gregpriday/memory-mcp/internal/filter"
	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Response modes.
const (
	ResponseModeAnswer   = "answer"
	ResponseModeMemories = "memories"
	ResponseModeBoth     = "both"
)

// RecallRequest is one recall invocation.
type RecallRequest struct {
	Query            string
	Index            string
	Limit            int
	Filters          map[string]interface{}
	FilterExpression string
	ResponseMode     string
	ProjectPrompt    string
}

// RecalledMemory is one memory the model selected as relevant.
type RecalledMemory struct {
	ID        string  `json:"id"`
	Text      string  `json:"text,omitempty"`
	Relevance float64 `json:"relevance"`
	Summary   string  `json:"summary,omitempty"`
}

// RecallResult is the synthesized answer plus supporting material.
type RecallResult struct {
	Status             string                    `json:"status"`
	Index              string                    `json:"index"`
	Answer             string                    `json:"answer,omitempty"`
	Memories           []RecalledMemory          `json:"memories,omitempty"`
	SupportingMemories []types.SearchResult      `json:"supportingMemories,omitempty"`
	SearchStatus       string                    `json:"searchStatus,omitempty"`
	SearchDiagnostics  []types.SearchDiagnostics `json:"searchDiagnostics,omitempty"`
}

// Recall answers a query from stored memories: prefetch via parallel
// (optionally expanded) searches, then let the model synthesize over
// the merged results.
func (a *Agent) Recall(ctx context.Context, req RecallRequest) (*RecallResult, error) {
	rc := newRequestContext(req.Index, ModeNormal)

	limit := req.Limit
	if limit <= 0 {
		limit = storage.DefaultSearchLimit
	}
	filterExpr := filter.CombineAnd(filter.FromStructured(req.Filters), req.FilterExpression)

	queries := append([]string{req.Query}, a.expandQuery(ctx, req.Query)...)
	prefetched, err := a.parallelSearch(ctx, rc, queries, limit, filterExpr)
	if err != nil {
		return nil, err
	}

	searchStatus := "found"
	if len(prefetched) == 0 {
		searchStatus = "no_matches"
	}

	payload := map[string]interface{}{
		"query":              req.Query,
		"limit":              limit,
		"prefetchedMemories": prefetchPayload(prefetched),
	}
	if filterExpr != "" {
		payload["filterExpression"] = filterExpr
	}

	prompt := llm.ComposePrompt(llm.RecallSystemPrompt, req.ProjectPrompt)
	final, err := a.runLoop(ctx, rc, prompt, payload)
	if err != nil {
		return nil, err
	}

	answer, recalled := parseRecallResponse(final)
	a.trackRecalled(ctx, rc, recalled)

	result := &RecallResult{
		Status:            "ok",
		Index:             req.Index,
		SearchStatus:      searchStatus,
		SearchDiagnostics: rc.SearchDiagnostics,
	}
	mode := req.ResponseMode
	if mode == "" {
		mode = ResponseModeBoth
	}
	if mode == ResponseModeAnswer || mode == ResponseModeBoth {
		result.Answer = answer
	}
	if mode == ResponseModeMemories || mode == ResponseModeBoth {
		result.Memories = recalled
		result.SupportingMemories = prefetched
	}
	return result, nil
}

// expandQuery asks the model for alternative phrasings. Failures are
// logged and swallowed: expansion is an optimization, never a blocker.
func (a *Agent) expandQuery(ctx context.Context, query string) []string {
	if !a.cfg.QueryExpansionEnabled || a.simple == nil {
		return nil
	}

	out, err := a.simple.Complete(ctx, llm.QueryExpansionPrompt, query, llm.MinAnalysisMaxTokens)
	if err != nil {
		a.log.Warn("query expansion failed", zap.Error(err))
		return nil
	}
	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := llm.DecodeObject(out, &parsed); err != nil {
		a.log.Warn("unparseable query expansion", zap.Error(err))
		return nil
	}

	var expanded []string
	for _, q := range parsed.Queries {
		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, query) {
			continue
		}
		expanded = append(expanded, q)
		if len(expanded) >= a.cfg.QueryExpansionCount {
			break
		}
	}
	return expanded
}

// parallelSearch runs every query concurrently and merges results by
// ID, keeping the highest score, truncated to limit.
func (a *Agent) parallelSearch(ctx context.Context, rc *RequestContext, queries []string, limit int, filterExpr string) ([]types.SearchResult, error) {
	var mu sync.Mutex
	merged := make(map[string]types.SearchResult)

	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		query := query
		g.Go(func() error {
			results, err := a.repo.SearchMemories(gctx, rc.Index, query, storage.SearchOptions{
				Limit:            limit,
				FilterExpression: filterExpr,
				// Tracking happens once, for the final selection.
				SkipAccessTracking: true,
				Diagnostics: func(d types.SearchDiagnostics) {
					mu.Lock()
					rc.SearchDiagnostics = append(rc.SearchDiagnostics, d)
					mu.Unlock()
				},
			})
			if err != nil {
				return err
			}
			mu.Lock()
			for _, r := range results {
				if prev, ok := merged[r.Memory.ID]; !ok || r.Score > prev.Score {
					merged[r.Memory.ID] = r
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// parseRecallResponse tolerates the shapes models actually produce:
// a proper memories array, a bare "none", or unparseable output (the
// raw content becomes the answer).
func parseRecallResponse(final string) (string, []RecalledMemory) {
	var parsed struct {
		Memories  json.RawMessage `json:"memories"`
		Synthesis string          `json:"synthesis"`
	}
	if err := llm.DecodeObject(final, &parsed); err != nil {
		return strings.TrimSpace(final), nil
	}

	answer := parsed.Synthesis
	if len(parsed.Memories) == 0 {
		return answer, nil
	}

	var recalled []RecalledMemory
	if err := json.Unmarshal(parsed.Memories, &recalled); err != nil {
		// "none" or similar: an answer with no memory selection.
		return answer, nil
	}
	valid := recalled[:0]
	for _, m := range recalled {
		if m.ID != "" {
			valid = append(valid, m)
		}
	}
	return answer, valid
}

// trackRecalled records access for final memories not already tracked
// during the loop, capped at the configured top N. Fire-and-forget.
func (a *Agent) trackRecalled(ctx context.Context, rc *RequestContext, recalled []RecalledMemory) {
	var untracked []string
	for _, m := range recalled {
		if len(untracked) >= a.cfg.AccessTrackingTopN {
			break
		}
		if !rc.TrackedMemoryIDs[m.ID] {
			untracked = append(untracked, m.ID)
			rc.TrackedMemoryIDs[m.ID] = true
		}
	}
	if len(untracked) == 0 {
		return
	}
	go a.repo.UpdateAccessStats(context.WithoutCancel(ctx), rc.Index, untracked)
}

func prefetchPayload(results []types.SearchResult) []map[string]interface{} {
	payload := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		payload = append(payload, searchResultPayload(r))
	}
	return payload
}
