// Package postgres implements the memory repository on PostgreSQL with
// pgvector for semantic search.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/priority"
	"github.com/gregpriday/memory-mcp/internal/storage"
	"github.com/gregpriday/memory-mcp/internal/validate"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

const (
	// defaultProject is the tenant used when none is configured.
	defaultProject = "default"

	// defaultDimensions matches the common embedding size of
	// text-embedding-3-small class models.
	defaultDimensions = 1536
)

// Store implements storage.Repository on PostgreSQL.
type Store struct {
	db       *sql.DB
	log      *zap.Logger
	embedder storage.Embedder

	project    string
	dimensions int

	accessTracking bool
	accessTopN     int
	slowQuery      time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithEmbedder sets the embedding provider. Upserts and searches fail with
// ErrEmbedderRequired without one.
func WithEmbedder(e storage.Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// WithProject sets the tenant all operations are scoped to.
func WithProject(project string) Option {
	return func(s *Store) {
		if project != "" {
			s.project = project
		}
	}
}

// WithDimensions sets the embedding dimension used in the schema.
func WithDimensions(d int) Option {
	return func(s *Store) {
		if d > 0 {
			s.dimensions = d
		}
	}
}

// WithAccessTracking enables access-stat updates, capped at topN memories
// per invocation (0 means no cap).
func WithAccessTracking(enabled bool, topN int) Option {
	return func(s *Store) {
		s.accessTracking = enabled
		s.accessTopN = topN
	}
}

// WithSlowQueryThreshold sets the timing-shim log threshold.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.slowQuery = d
		}
	}
}

// New opens (or reuses) a connection pool for dsn and applies the schema.
func New(dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		log:        zap.NewNop(),
		project:    defaultProject,
		dimensions: defaultDimensions,
		slowQuery:  defaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := openPool(dsn)
	if err != nil {
		return nil, err
	}
	s.db = db

	if _, err := db.Exec(schemaSQL(s.dimensions)); err != nil {
		return nil, classify(fmt.Errorf("failed to apply schema: %w", err))
	}

	// ANN index is best-effort; cosine search still works without it.
	if _, err := db.Exec(vectorIndexSQL); err != nil {
		s.log.Warn("vector index unavailable, searches fall back to sequential scan", zap.Error(err))
	}

	return s, nil
}

// Close is a no-op: connection pools are shared across stores and are torn
// down once at shutdown via ClosePools.
func (s *Store) Close() error {
	return nil
}

// memoryColumns is the fixed read column list. Embeddings are deliberately
// excluded from read paths.
const memoryColumns = `id, content, memory_type, topic, importance, tags, source, source_path,
	initial_priority, current_priority, created_at, last_accessed_at, access_count,
	max_access_count, stability, sleep_cycles, kind, derived_from_ids, superseded_by_id,
	metadata, updated_at`

// EnsureIndex creates the index if missing. A non-empty description replaces
// the stored one; an empty description leaves it untouched.
func (s *Store) EnsureIndex(ctx context.Context, name, description string) (*types.MemoryIndex, error) {
	defer s.track("EnsureIndex")()

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: index name is required", storage.ErrInvalidInput)
	}

	query := `
		INSERT INTO memory_indexes (project, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (project, name) DO UPDATE SET
			description = CASE WHEN EXCLUDED.description <> ''
				THEN EXCLUDED.description
				ELSE memory_indexes.description END
		RETURNING id, project, name, description
	`

	var idx types.MemoryIndex
	err := s.db.QueryRowContext(ctx, query, s.project, name, description).
		Scan(&idx.ID, &idx.Project, &idx.Name, &idx.Description)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to ensure index %q: %w", name, err))
	}
	return &idx, nil
}

// resolveIndex looks up an existing index for the active project.
func (s *Store) resolveIndex(ctx context.Context, name string) (*types.MemoryIndex, error) {
	var idx types.MemoryIndex
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project, name, description FROM memory_indexes WHERE project = $1 AND name = $2`,
		s.project, name,
	).Scan(&idx.ID, &idx.Project, &idx.Name, &idx.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q in project %q", storage.ErrIndexNotFound, name, s.project)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to resolve index %q: %w", name, err))
	}
	return &idx, nil
}

// UpsertMemories writes a batch into the index inside one transaction:
// bulk INSERT ... ON CONFLICT for the rows, then relationship sync for every
// item whose metadata carried a relationships list.
func (s *Store) UpsertMemories(ctx context.Context, index string, items []*types.Memory, defaults map[string]interface{}) ([]string, error) {
	defer s.track("UpsertMemories")()

	if len(items) == 0 {
		return nil, nil
	}
	if s.embedder == nil {
		return nil, storage.ErrEmbedderRequired
	}

	idx, err := s.EnsureIndex(ctx, index, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	ids := make([]string, len(items))
	for i, m := range items {
		if m == nil || strings.TrimSpace(m.Content.Text) == "" {
			return nil, fmt.Errorf("%w: item %d has no text", storage.ErrInvalidInput, i)
		}
		if m.ID == "" {
			m.ID = "mem_" + uuid.NewString()
		}
		ids[i] = m.ID
	}

	existing, err := s.getByIDs(ctx, idx, ids)
	if err != nil {
		return nil, err
	}
	existingByID := make(map[string]*types.Memory, len(existing))
	for _, m := range existing {
		existingByID[m.ID] = m
	}

	type prepared struct {
		relationships []types.Relationship
		syncEdges     bool
	}
	rows := make([]prepared, len(items))
	texts := make([]string, len(items))

	for i, m := range items {
		var existingMeta map[string]interface{}
		if prev := existingByID[m.ID]; prev != nil {
			existingMeta = prev.Metadata
			// Updates keep the lifecycle history of the original row.
			m.Dynamics = prev.Dynamics
		}

		merged := mergeMetadata(defaults, existingMeta, m.Metadata)
		if err := validate.Metadata(merged); err != nil {
			return nil, fmt.Errorf("memory %s: %w", m.ID, err)
		}

		applyMetadata(m, merged)

		rels, present, err := extractRelationships(merged, m.ID)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", m.ID, err)
		}
		rows[i] = prepared{relationships: rels, syncEdges: present}

		if m.Content.Timestamp.IsZero() {
			m.Content.Timestamp = now
		}
		if m.Dynamics.CreatedAt.IsZero() {
			m.Dynamics = priority.InitialDynamics(m, now)
		} else {
			m.Dynamics.CurrentPriority = priority.Compute(m, now)
		}

		m.Metadata = stripPersisted(merged)
		texts[i] = m.Content.Text
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, classify(fmt.Errorf("embedding failed: %w", err))
	}
	if len(vectors) != len(items) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(items))
	}

	args := make([]interface{}, 0, len(items)*upsertColumnCount)
	for i, m := range items {
		contentJSON, err := json.Marshal(m.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content for %s: %w", m.ID, err)
		}
		metadataJSON, err := json.Marshal(orEmptyMap(m.Metadata))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for %s: %w", m.ID, err)
		}

		args = append(args,
			m.ID, idx.ID, s.project, contentJSON, pgvector.NewVector(vectors[i]),
			string(m.MemoryType), nullableString(m.Topic), m.Importance.Int(),
			pq.Array(orEmptySlice(m.Tags)), nullableString(string(m.Source)), nullableString(m.SourcePath),
			m.Dynamics.InitialPriority, m.Dynamics.CurrentPriority, m.Dynamics.CreatedAt,
			nullableTimePtr(m.Dynamics.LastAccessedAt), m.Dynamics.AccessCount, m.Dynamics.MaxAccessCount,
			string(m.Dynamics.Stability), m.Dynamics.SleepCycles,
			string(m.Kind), pq.Array(orEmptySlice(m.DerivedFromIDs)), nullableString(m.SupersededByID),
			metadataJSON,
		)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, buildUpsertSQL(len(items)), args...); err != nil {
		return nil, classify(fmt.Errorf("failed to upsert memories: %w", err))
	}

	for i, m := range items {
		if !rows[i].syncEdges {
			continue
		}
		if err := syncRelationships(ctx, tx, s.project, idx.ID, m.ID, rows[i].relationships); err != nil {
			return nil, classify(fmt.Errorf("failed to sync relationships for %s: %w", m.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit upsert: %w", err))
	}

	return ids, nil
}

// upsertColumnCount is the fixed width of one upsert row.
const upsertColumnCount = 23

// buildUpsertSQL renders the bulk INSERT ... ON CONFLICT statement for n
// rows. created_at survives updates; updated_at is bumped server-side.
func buildUpsertSQL(n int) string {
	var values strings.Builder
	for row := 0; row < n; row++ {
		if row > 0 {
			values.WriteString(", ")
		}
		values.WriteByte('(')
		for col := 0; col < upsertColumnCount; col++ {
			if col > 0 {
				values.WriteString(", ")
			}
			fmt.Fprintf(&values, "$%d", row*upsertColumnCount+col+1)
		}
		values.WriteByte(')')
	}

	return `
		INSERT INTO memories (
			id, index_id, project, content, embedding,
			memory_type, topic, importance,
			tags, source, source_path,
			initial_priority, current_priority, created_at,
			last_accessed_at, access_count, max_access_count,
			stability, sleep_cycles,
			kind, derived_from_ids, superseded_by_id,
			metadata
		) VALUES ` + values.String() + `
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			memory_type = EXCLUDED.memory_type,
			topic = EXCLUDED.topic,
			importance = EXCLUDED.importance,
			tags = EXCLUDED.tags,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			initial_priority = EXCLUDED.initial_priority,
			current_priority = EXCLUDED.current_priority,
			last_accessed_at = EXCLUDED.last_accessed_at,
			access_count = EXCLUDED.access_count,
			max_access_count = EXCLUDED.max_access_count,
			stability = EXCLUDED.stability,
			sleep_cycles = EXCLUDED.sleep_cycles,
			kind = EXCLUDED.kind,
			derived_from_ids = EXCLUDED.derived_from_ids,
			superseded_by_id = EXCLUDED.superseded_by_id,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
	`
}

// syncRelationships replaces the outgoing edges of one memory inside the
// upsert transaction: delete everything, then insert exactly what was listed.
func syncRelationships(ctx context.Context, tx *sql.Tx, project string, indexID int64, sourceID string, rels []types.Relationship) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_relationships WHERE index_id = $1 AND source_id = $2`,
		indexID, sourceID,
	); err != nil {
		return err
	}

	for _, rel := range rels {
		metadataJSON, err := json.Marshal(orEmptyMap(rel.Metadata))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_relationships
				(project, index_id, source_id, target_id, relationship_type, confidence, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (source_id, target_id, relationship_type, index_id) DO UPDATE SET
				confidence = EXCLUDED.confidence,
				metadata = EXCLUDED.metadata`,
			project, indexID, sourceID, rel.TargetID, string(rel.Type),
			nullableFloatPtr(rel.Weight), metadataJSON,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetMemory fetches a single memory with its relationships populated and
// fires access tracking.
func (s *Store) GetMemory(ctx context.Context, index, id string) (*types.Memory, error) {
	memories, err := s.GetMemories(ctx, index, []string{id})
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, storage.ErrNotFound
	}
	return memories[0], nil
}

// GetMemories fetches memories by ID with relationships populated and fires
// access tracking. Missing IDs are skipped.
func (s *Store) GetMemories(ctx context.Context, index string, ids []string) ([]*types.Memory, error) {
	defer s.track("GetMemories")()

	if len(ids) == 0 {
		return nil, nil
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	memories, err := s.getByIDs(ctx, idx, ids)
	if err != nil {
		return nil, err
	}
	if err := s.loadRelationships(ctx, idx, memories); err != nil {
		return nil, err
	}

	found := make([]string, 0, len(memories))
	for _, m := range memories {
		found = append(found, m.ID)
	}
	go s.UpdateAccessStats(context.WithoutCancel(ctx), index, found)

	return memories, nil
}

// getByIDs is the tracking-free fetch used internally. Results preserve the
// order of ids; missing IDs are skipped.
func (s *Store) getByIDs(ctx context.Context, idx *types.MemoryIndex, ids []string) ([]*types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM memories WHERE index_id = $1 AND id = ANY($2)`,
		memoryColumns,
	)
	rows, err := s.db.QueryContext(ctx, query, idx.ID, pq.Array(ids))
	if err != nil {
		return nil, classify(fmt.Errorf("failed to fetch memories: %w", err))
	}
	defer rows.Close()

	byID := make(map[string]*types.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemory(rows, idx.Name)
		if err != nil {
			return nil, err
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error iterating memories: %w", err))
	}

	out := make([]*types.Memory, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
			delete(byID, id)
		}
	}
	return out, nil
}

// loadRelationships populates the outgoing edges of the given memories.
func (s *Store) loadRelationships(ctx context.Context, idx *types.MemoryIndex, memories []*types.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	ids := make([]string, len(memories))
	byID := make(map[string]*types.Memory, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relationship_type, confidence, metadata
		FROM memory_relationships
		WHERE index_id = $1 AND source_id = ANY($2)
		ORDER BY source_id, target_id`,
		idx.ID, pq.Array(ids),
	)
	if err != nil {
		return classify(fmt.Errorf("failed to load relationships: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var rel types.Relationship
		var relType string
		var confidence sql.NullFloat64
		var metadataJSON []byte
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &relType, &confidence, &metadataJSON); err != nil {
			return classify(fmt.Errorf("failed to scan relationship: %w", err))
		}
		rel.Type = types.RelationshipType(relType)
		if confidence.Valid {
			v := confidence.Float64
			rel.Weight = &v
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &rel.Metadata)
		}
		if m := byID[rel.SourceID]; m != nil {
			m.Relationships = append(m.Relationships, rel)
		}
	}
	return rows.Err()
}

// DeleteMemories permanently removes memories and any edges touching them.
// System-sourced rows are skipped regardless of what the caller passed;
// their count is simply absent from the returned total.
func (s *Store) DeleteMemories(ctx context.Context, index string, ids []string) (int, error) {
	defer s.track("DeleteMemories")()

	if len(ids) == 0 {
		return 0, nil
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`DELETE FROM memories
		 WHERE index_id = $1 AND id = ANY($2) AND source IS DISTINCT FROM $3
		 RETURNING id`,
		idx.ID, pq.Array(ids), string(types.SourceSystem),
	)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to delete memories: %w", err))
	}
	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, classify(fmt.Errorf("failed to read deleted ids: %w", err))
		}
		deleted = append(deleted, id)
	}
	if err := rows.Err(); err != nil {
		return 0, classify(fmt.Errorf("failed to read deleted ids: %w", err))
	}
	rows.Close()

	// Edges are only removed for rows that actually went away, so a
	// protected memory keeps its relationships.
	if len(deleted) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_relationships WHERE index_id = $1 AND (source_id = ANY($2) OR target_id = ANY($2))`,
			idx.ID, pq.Array(deleted),
		); err != nil {
			return 0, classify(fmt.Errorf("failed to delete relationships: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("failed to commit delete: %w", err))
	}
	return len(deleted), nil
}

// UpdateAccessStats bumps counters and recomputes priorities. Gated by the
// access-tracking config; errors are logged, never returned.
func (s *Store) UpdateAccessStats(ctx context.Context, index string, ids []string) {
	if !s.accessTracking || len(ids) == 0 {
		return
	}
	if s.accessTopN > 0 && len(ids) > s.accessTopN {
		ids = ids[:s.accessTopN]
	}
	defer s.track("UpdateAccessStats")()

	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		s.log.Warn("access tracking skipped", zap.String("index", index), zap.Error(err))
		return
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    max_access_count = GREATEST(max_access_count, access_count + 1),
		    last_accessed_at = NOW()
		WHERE index_id = $1 AND id = ANY($2)`,
		idx.ID, pq.Array(ids),
	)
	if err != nil {
		s.log.Warn("access counter update failed", zap.Error(err))
		return
	}

	// Recompute salience with the fresh counters.
	memories, err := s.getByIDs(ctx, idx, ids)
	if err != nil {
		s.log.Warn("priority refresh fetch failed", zap.Error(err))
		return
	}
	now := time.Now().UTC()
	for _, m := range memories {
		p := priority.Compute(m, now)
		if _, err := s.db.ExecContext(ctx,
			`UPDATE memories SET current_priority = $1 WHERE id = $2`,
			p, m.ID,
		); err != nil {
			s.log.Warn("priority refresh failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
}

// IncrementSleepCycles bumps the refinement-pass counter.
func (s *Store) IncrementSleepCycles(ctx context.Context, index string, ids []string) (int, error) {
	defer s.track("IncrementSleepCycles")()

	if len(ids) == 0 {
		return 0, nil
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET sleep_cycles = sleep_cycles + 1, updated_at = NOW()
		 WHERE index_id = $1 AND id = ANY($2)`,
		idx.ID, pq.Array(ids),
	)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to increment sleep cycles: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count updated rows: %w", err))
	}
	return int(n), nil
}

// MarkMemoriesSuperseded points the given memories at their replacement.
func (s *Store) MarkMemoriesSuperseded(ctx context.Context, index string, ids []string, supersededBy string) (int, error) {
	defer s.track("MarkMemoriesSuperseded")()

	if len(ids) == 0 {
		return 0, nil
	}
	if supersededBy == "" {
		return 0, fmt.Errorf("%w: superseding memory ID is required", storage.ErrInvalidInput)
	}
	idx, err := s.resolveIndex(ctx, index)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET superseded_by_id = $1, updated_at = NOW()
		 WHERE index_id = $2 AND id = ANY($3) AND id <> $1`,
		supersededBy, idx.ID, pq.Array(ids),
	)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to mark memories superseded: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count updated rows: %w", err))
	}
	return int(n), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory reads one row in memoryColumns order.
func scanMemory(sc rowScanner, indexName string) (*types.Memory, error) {
	var (
		m            types.Memory
		contentJSON  []byte
		metadataJSON []byte
		memoryType   string
		kind         string
		stability    string
		importance   int
		topic        sql.NullString
		source       sql.NullString
		sourcePath   sql.NullString
		supersededBy sql.NullString
		lastAccessed sql.NullTime
		tags         pq.StringArray
		derivedFrom  pq.StringArray
	)

	err := sc.Scan(
		&m.ID, &contentJSON, &memoryType, &topic, &importance, &tags, &source, &sourcePath,
		&m.Dynamics.InitialPriority, &m.Dynamics.CurrentPriority, &m.Dynamics.CreatedAt,
		&lastAccessed, &m.Dynamics.AccessCount, &m.Dynamics.MaxAccessCount,
		&stability, &m.Dynamics.SleepCycles, &kind, &derivedFrom, &supersededBy,
		&metadataJSON, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to scan memory: %w", err))
	}

	m.IndexName = indexName
	m.MemoryType = types.MemoryType(memoryType)
	m.Kind = types.Kind(kind)
	m.Importance = types.ImportanceFromInt(importance)
	m.Dynamics.Stability = types.Stability(stability)
	m.Tags = []string(tags)
	m.DerivedFromIDs = []string(derivedFrom)

	if topic.Valid {
		m.Topic = topic.String
	}
	if source.Valid {
		m.Source = types.Source(source.String)
	}
	if sourcePath.Valid {
		m.SourcePath = sourcePath.String
	}
	if supersededBy.Valid {
		m.SupersededByID = supersededBy.String
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		m.Dynamics.LastAccessedAt = &t
	}

	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content for %s: %w", m.ID, err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", m.ID, err)
		}
	}
	restoreEmotion(&m)

	return &m, nil
}

// restoreEmotion lifts the emotion block out of metadata into the typed
// field. The JSON copy stays, since emotion is not a column.
func restoreEmotion(m *types.Memory) {
	raw, ok := m.Metadata["emotion"].(map[string]interface{})
	if !ok {
		return
	}
	if label, ok := raw["label"].(string); ok {
		m.Emotion.Label = label
	}
	if v, ok := raw["intensity"].(float64); ok {
		m.Emotion.Intensity = &v
	}
}

// nullableString converts a string to sql.NullString (NULL when empty).
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTimePtr converts a *time.Time to sql.NullTime (NULL when nil).
func nullableTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableFloatPtr converts a *float64 to sql.NullFloat64 (NULL when nil).
func nullableFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func orEmptySlice(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func orEmptyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
