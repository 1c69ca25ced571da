package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// GetRelatedMemories walks the relationship graph from rootID using a
// recursive edge CTE. Cycles are prevented by carrying the visited path;
// each target is deduplicated to its shortest depth and results come back
// ordered by (depth, id).
func (s *Store) GetRelatedMemories(ctx context.Context, index, rootID string, opts storage.RelatedOptions) ([]storage.RelatedMemory, error) {
	defer s.track("GetRelatedMemories")()
	opts.Normalize()

	if rootID == "" {
		return nil, fmt.Errorf("%w: root memory ID is required", storage.ErrInvalidInput)
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	args := []interface{}{idx.ID, rootID, opts.MaxDepth, opts.Limit}
	typeCond := ""
	if len(opts.RelationshipTypes) > 0 {
		relTypes := make([]string, len(opts.RelationshipTypes))
		for i, t := range opts.RelationshipTypes {
			relTypes[i] = string(t)
		}
		typeCond = " AND relationship_type = ANY($5)"
		args = append(args, pq.Array(relTypes))
	}

	forward := `SELECT source_id AS from_id, target_id AS to_id FROM memory_relationships WHERE index_id = $1` + typeCond
	backward := `SELECT target_id AS from_id, source_id AS to_id FROM memory_relationships WHERE index_id = $1` + typeCond

	var edges string
	switch opts.Direction {
	case storage.DirectionBackward:
		edges = backward
	case storage.DirectionBoth:
		edges = forward + " UNION ALL " + backward
	default:
		edges = forward
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE edges AS (%s),
		walk AS (
			SELECT e.to_id AS id, 1 AS depth, ARRAY[$2::text, e.to_id] AS path
			FROM edges e
			WHERE e.from_id = $2
			UNION ALL
			SELECT e.to_id, w.depth + 1, w.path || e.to_id
			FROM edges e
			JOIN walk w ON e.from_id = w.id
			WHERE w.depth < $3 AND NOT e.to_id = ANY(w.path)
		)
		SELECT id, MIN(depth) AS depth
		FROM walk
		WHERE id <> $2
		GROUP BY id
		ORDER BY depth, id
		LIMIT $4`, edges)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("graph traversal failed: %w", err))
	}
	defer rows.Close()

	type hit struct {
		id    string
		depth int
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.depth); err != nil {
			return nil, classify(fmt.Errorf("failed to scan traversal row: %w", err))
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error iterating traversal: %w", err))
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	memories, err := s.getByIDs(ctx, idx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	// Keep (depth, id) ordering from the walk; skip edges pointing at
	// memories deleted since the edge was written.
	results := make([]storage.RelatedMemory, 0, len(hits))
	for _, h := range hits {
		if m, ok := byID[h.id]; ok {
			results = append(results, storage.RelatedMemory{Memory: m, Depth: h.depth})
		}
	}
	return results, nil
}

// FindRelationshipPath returns the shortest edge path between two memories,
// treating edges as bidirectional. Returns ErrNotFound when no path exists
// within maxDepth.
func (s *Store) FindRelationshipPath(ctx context.Context, index, sourceID, targetID string, maxDepth int) ([]types.Relationship, error) {
	defer s.track("FindRelationshipPath")()

	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: source and target memory IDs are required", storage.ErrInvalidInput)
	}
	if maxDepth <= 0 {
		maxDepth = storage.DefaultPathDepth
	}
	if maxDepth > storage.MaxGraphDepth {
		maxDepth = storage.MaxGraphDepth
	}

	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	query := `
		WITH RECURSIVE edges AS (
			SELECT source_id AS from_id, target_id AS to_id, relationship_type
			FROM memory_relationships WHERE index_id = $1
			UNION ALL
			SELECT target_id AS from_id, source_id AS to_id, relationship_type
			FROM memory_relationships WHERE index_id = $1
		),
		walk AS (
			SELECT e.to_id AS id, 1 AS depth,
			       ARRAY[$2::text, e.to_id] AS path,
			       ARRAY[e.relationship_type] AS rel_types
			FROM edges e
			WHERE e.from_id = $2
			UNION ALL
			SELECT e.to_id, w.depth + 1, w.path || e.to_id, w.rel_types || e.relationship_type
			FROM edges e
			JOIN walk w ON e.from_id = w.id
			WHERE w.depth < $3 AND NOT e.to_id = ANY(w.path)
		)
		SELECT path, rel_types FROM walk WHERE id = $4 ORDER BY depth LIMIT 1`

	var path, relTypes pq.StringArray
	err = s.db.QueryRowContext(ctx, query, idx.ID, sourceID, maxDepth, targetID).Scan(&path, &relTypes)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no relationship path from %s to %s within depth %d",
			storage.ErrNotFound, sourceID, targetID, maxDepth)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("path search failed: %w", err))
	}
	if len(path) != len(relTypes)+1 {
		return nil, fmt.Errorf("postgres: malformed path result: %d nodes, %d edges", len(path), len(relTypes))
	}

	hops := make([]types.Relationship, len(relTypes))
	for i := range relTypes {
		hops[i] = types.Relationship{
			SourceID: path[i],
			TargetID: path[i+1],
			Type:     types.RelationshipType(relTypes[i]),
		}
	}
	return hops, nil
}
