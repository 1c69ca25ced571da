package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

const (
	defaultTopBeliefs    = 10
	defaultGraphMaxNodes = 100
	defaultGraphMaxEdges = 200
	maxDecayingListed    = 20

	// Priority-health bucket thresholds.
	priorityHighThreshold   = 0.7
	priorityMediumThreshold = 0.3
)

// GetDatabaseInfo summarizes the store for the active project. Embeddings
// are never included.
func (s *Store) GetDatabaseInfo(ctx context.Context) (*storage.DatabaseInfo, error) {
	defer s.track("GetDatabaseInfo")()

	indexes, err := s.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	info := &storage.DatabaseInfo{
		Project:             s.project,
		EmbeddingDimensions: s.dimensions,
		Indexes:             indexes,
	}
	for _, idx := range indexes {
		info.TotalMemories += idx.MemoryCount
	}
	return info, nil
}

// ListIndexes returns every index of the active project with its memory
// count.
func (s *Store) ListIndexes(ctx context.Context) ([]types.MemoryIndex, error) {
	defer s.track("ListIndexes")()

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.project, i.name, i.description, COUNT(m.id)
		FROM memory_indexes i
		LEFT JOIN memories m ON m.index_id = i.id
		WHERE i.project = $1
		GROUP BY i.id, i.project, i.name, i.description
		ORDER BY i.name`,
		s.project,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list indexes: %w", err))
	}
	defer rows.Close()

	var indexes []types.MemoryIndex
	for rows.Next() {
		var idx types.MemoryIndex
		if err := rows.Scan(&idx.ID, &idx.Project, &idx.Name, &idx.Description, &idx.MemoryCount); err != nil {
			return nil, classify(fmt.Errorf("failed to scan index: %w", err))
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// GetTypeDistribution counts live memories per type.
func (s *Store) GetTypeDistribution(ctx context.Context, index string) ([]storage.TypeCount, error) {
	defer s.track("GetTypeDistribution")()

	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*)
		FROM memories
		WHERE index_id = $1 AND superseded_by_id IS NULL
		GROUP BY memory_type
		ORDER BY COUNT(*) DESC, memory_type`,
		idx.ID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to aggregate types: %w", err))
	}
	defer rows.Close()

	var dist []storage.TypeCount
	for rows.Next() {
		var tc storage.TypeCount
		var mt string
		if err := rows.Scan(&mt, &tc.Count); err != nil {
			return nil, classify(fmt.Errorf("failed to scan type count: %w", err))
		}
		tc.MemoryType = types.MemoryType(mt)
		dist = append(dist, tc)
	}
	return dist, rows.Err()
}

// GetTopBeliefs returns the highest-priority live belief and self memories.
func (s *Store) GetTopBeliefs(ctx context.Context, index string, limit int) ([]storage.BeliefSummary, error) {
	defer s.track("GetTopBeliefs")()

	if limit <= 0 {
		limit = defaultTopBeliefs
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content->>'text', memory_type, importance, stability, current_priority
		FROM memories
		WHERE index_id = $1 AND superseded_by_id IS NULL AND memory_type IN ('belief', 'self')
		ORDER BY current_priority DESC, id
		LIMIT $2`,
		idx.ID, limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query beliefs: %w", err))
	}
	defer rows.Close()

	var beliefs []storage.BeliefSummary
	for rows.Next() {
		var b storage.BeliefSummary
		var mt, stability string
		var importance int
		if err := rows.Scan(&b.ID, &b.Text, &mt, &importance, &stability, &b.CurrentPriority); err != nil {
			return nil, classify(fmt.Errorf("failed to scan belief: %w", err))
		}
		b.MemoryType = types.MemoryType(mt)
		b.Importance = types.ImportanceFromInt(importance)
		b.Stability = types.Stability(stability)
		beliefs = append(beliefs, b)
	}
	return beliefs, rows.Err()
}

// GetEmotionMap aggregates memories by emotion label with average intensity.
func (s *Store) GetEmotionMap(ctx context.Context, index string) ([]storage.EmotionStat, error) {
	defer s.track("GetEmotionMap")()

	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT metadata->'emotion'->>'label' AS label,
		       COUNT(*),
		       AVG(COALESCE((metadata->'emotion'->>'intensity')::double precision, 0))
		FROM memories
		WHERE index_id = $1 AND superseded_by_id IS NULL
		  AND metadata->'emotion'->>'label' IS NOT NULL
		GROUP BY label
		ORDER BY COUNT(*) DESC, label`,
		idx.ID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to aggregate emotions: %w", err))
	}
	defer rows.Close()

	var stats []storage.EmotionStat
	for rows.Next() {
		var e storage.EmotionStat
		if err := rows.Scan(&e.Label, &e.Count, &e.AvgIntensity); err != nil {
			return nil, classify(fmt.Errorf("failed to scan emotion stat: %w", err))
		}
		stats = append(stats, e)
	}
	return stats, rows.Err()
}

// GetRelationshipGraph returns a size-capped snapshot of the edge graph with
// short text previews as node labels.
func (s *Store) GetRelationshipGraph(ctx context.Context, index string, maxNodes, maxEdges int) (*storage.GraphSnapshot, error) {
	defer s.track("GetRelationshipGraph")()

	if maxNodes <= 0 {
		maxNodes = defaultGraphMaxNodes
	}
	if maxEdges <= 0 {
		maxEdges = defaultGraphMaxEdges
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	// Fetch one extra edge to detect truncation.
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relationship_type, confidence
		FROM memory_relationships
		WHERE index_id = $1
		ORDER BY id
		LIMIT $2`,
		idx.ID, maxEdges+1,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query graph edges: %w", err))
	}
	defer rows.Close()

	snapshot := &storage.GraphSnapshot{}
	nodeIDs := make(map[string]bool)
	for rows.Next() {
		var edge storage.GraphEdge
		var relType string
		var confidence sql.NullFloat64
		if err := rows.Scan(&edge.SourceID, &edge.TargetID, &relType, &confidence); err != nil {
			return nil, classify(fmt.Errorf("failed to scan graph edge: %w", err))
		}
		if len(snapshot.Edges) >= maxEdges {
			snapshot.Truncated = true
			break
		}
		edge.Type = types.RelationshipType(relType)
		if confidence.Valid {
			v := confidence.Float64
			edge.Confidence = &v
		}
		snapshot.Edges = append(snapshot.Edges, edge)
		nodeIDs[edge.SourceID] = true
		nodeIDs[edge.TargetID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error iterating graph edges: %w", err))
	}
	if len(nodeIDs) == 0 {
		return snapshot, nil
	}

	ids := make([]string, 0, len(nodeIDs))
	for id := range nodeIDs {
		ids = append(ids, id)
	}
	if len(ids) > maxNodes {
		snapshot.Truncated = true
		ids = ids[:maxNodes]
	}

	memories, err := s.getByIDs(ctx, idx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		snapshot.Nodes = append(snapshot.Nodes, storage.GraphNode{
			ID:         m.ID,
			Label:      previewText(m.Content.Text, 80),
			MemoryType: m.MemoryType,
		})
	}
	return snapshot, nil
}

// GetPriorityHealth buckets live memories by current priority and lists the
// decaying set: priority under 0.2 with no access for at least 60 days.
func (s *Store) GetPriorityHealth(ctx context.Context, index string) (*storage.PriorityHealth, error) {
	defer s.track("GetPriorityHealth")()

	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	health := &storage.PriorityHealth{}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE current_priority >= $2),
			COUNT(*) FILTER (WHERE current_priority >= $3 AND current_priority < $2),
			COUNT(*) FILTER (WHERE current_priority < $3)
		FROM memories
		WHERE index_id = $1 AND superseded_by_id IS NULL`,
		idx.ID, priorityHighThreshold, priorityMediumThreshold,
	).Scan(&health.High, &health.Medium, &health.Low)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to bucket priorities: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content->>'text', current_priority, last_accessed_at
		FROM memories
		WHERE index_id = $1 AND superseded_by_id IS NULL
		  AND current_priority < 0.2
		  AND COALESCE(last_accessed_at, created_at) < NOW() - INTERVAL '60 days'
		ORDER BY current_priority, id
		LIMIT $2`,
		idx.ID, maxDecayingListed,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query decaying memories: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var d storage.DecayingMemory
		var text string
		var lastAccessed sql.NullTime
		if err := rows.Scan(&d.ID, &text, &d.CurrentPriority, &lastAccessed); err != nil {
			return nil, classify(fmt.Errorf("failed to scan decaying memory: %w", err))
		}
		d.Text = previewText(text, 120)
		if lastAccessed.Valid {
			t := lastAccessed.Time
			d.LastAccessedAt = &t
		}
		health.Decaying = append(health.Decaying, d)
	}
	return health, rows.Err()
}

// previewText truncates text for display, appending an ellipsis marker.
func previewText(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
