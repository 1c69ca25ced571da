package postgres

import "fmt"

// schemaTemplate is the idempotent base schema. The single %d is the
// embedding dimension; changing the dimension requires re-embedding.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_indexes (
	id          BIGSERIAL PRIMARY KEY,
	project     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (project, name)
);

CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	index_id         BIGINT NOT NULL REFERENCES memory_indexes(id) ON DELETE CASCADE,
	project          TEXT NOT NULL,
	content          JSONB NOT NULL,
	embedding        vector(%d),
	memory_type      TEXT NOT NULL DEFAULT 'episodic',
	topic            TEXT,
	importance       INTEGER NOT NULL DEFAULT 0,
	tags             TEXT[] NOT NULL DEFAULT '{}',
	source           TEXT,
	source_path      TEXT,
	initial_priority DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_priority DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_accessed_at TIMESTAMPTZ,
	access_count     INTEGER NOT NULL DEFAULT 0,
	max_access_count INTEGER NOT NULL DEFAULT 0,
	stability        TEXT NOT NULL DEFAULT 'tentative',
	sleep_cycles     INTEGER NOT NULL DEFAULT 0,
	kind             TEXT NOT NULL DEFAULT 'raw',
	derived_from_ids TEXT[] NOT NULL DEFAULT '{}',
	superseded_by_id TEXT,
	metadata         JSONB NOT NULL DEFAULT '{}',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memories_index ON memories(index_id);
CREATE INDEX IF NOT EXISTS idx_memories_live ON memories(index_id) WHERE superseded_by_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(index_id, memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_priority ON memories(index_id, current_priority DESC);

CREATE TABLE IF NOT EXISTS memory_relationships (
	id                BIGSERIAL PRIMARY KEY,
	project           TEXT NOT NULL,
	index_id          BIGINT NOT NULL REFERENCES memory_indexes(id) ON DELETE CASCADE,
	source_id         TEXT NOT NULL,
	target_id         TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	confidence        DOUBLE PRECISION,
	metadata          JSONB NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source_id, target_id, relationship_type, index_id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON memory_relationships(index_id, source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON memory_relationships(index_id, target_id);
`

// vectorIndexSQL builds the ANN index. Kept separate from the base schema so
// a failure (e.g. pgvector built without HNSW) degrades to sequential scan
// instead of blocking startup.
const vectorIndexSQL = `CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)`

func schemaSQL(dimensions int) string {
	return fmt.Sprintf(schemaTemplate, dimensions)
}
