package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/gregpriday/memory-mcp/internal/filter"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// SearchMemories runs a cosine-similarity search over the index. Superseded
// memories never appear; an optional DSL filter narrows the candidate set.
// One diagnostics row is emitted per call when a listener is set, and access
// stats for the returned IDs are updated in the background.
func (s *Store) SearchMemories(ctx context.Context, index, query string, opts storage.SearchOptions) ([]types.SearchResult, error) {
	defer s.track("SearchMemories")()
	opts.Normalize()
	start := time.Now()

	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, storage.ErrEmbedderRequired
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, classify(fmt.Errorf("query embedding failed: %w", err))
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	args := []interface{}{pgvector.NewVector(vectors[0]), idx.ID}
	where := `index_id = $2 AND superseded_by_id IS NULL AND embedding IS NOT NULL`

	if opts.FilterExpression != "" {
		compiled, err := filter.CompileFrom(opts.FilterExpression, len(args)+1)
		if err != nil {
			return nil, classify(err)
		}
		where += " AND (" + compiled.SQL + ")"
		args = append(args, compiled.Params...)
	}

	sqlText := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS score
		FROM memories
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d`,
		memoryColumns, where, len(args)+1,
	)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("search failed: %w", err))
	}
	defer rows.Close()

	var (
		results     []types.SearchResult
		filteredOut int
	)
	for rows.Next() {
		m, score, err := scanSearchRow(rows, idx.Name)
		if err != nil {
			return nil, err
		}
		if score < opts.MinScore {
			filteredOut++
			continue
		}
		results = append(results, types.SearchResult{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error iterating search results: %w", err))
	}

	if opts.Diagnostics != nil {
		diag := types.SearchDiagnostics{
			Query:          query,
			IndexName:      idx.Name,
			Filter:         opts.FilterExpression,
			RequestedLimit: opts.Limit,
			ResultCount:    len(results),
			Threshold:      opts.MinScore,
			FilteredOut:    filteredOut,
			Elapsed:        time.Since(start),
			Timestamp:      time.Now().UTC(),
		}
		if len(results) > 0 {
			diag.TopScore = results[0].Score
			diag.BottomScore = results[len(results)-1].Score
		}
		opts.Diagnostics(diag)
	}

	if !opts.SkipAccessTracking && len(results) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Memory.ID
		}
		go s.UpdateAccessStats(context.WithoutCancel(ctx), index, ids)
	}

	return results, nil
}

// scanSearchRow reads memoryColumns plus the trailing score column.
func scanSearchRow(rows rowScanner, indexName string) (*types.Memory, float64, error) {
	var score float64
	m, err := scanMemory(&appendScanner{inner: rows, extra: &score}, indexName)
	if err != nil {
		return nil, 0, err
	}
	return m, score, nil
}

// appendScanner forwards Scan with one extra trailing destination.
type appendScanner struct {
	inner rowScanner
	extra *float64
}

func (a *appendScanner) Scan(dest ...interface{}) error {
	return a.inner.Scan(append(dest, a.extra)...)
}
