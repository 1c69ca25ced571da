// Package storage defines the capability interfaces and shared option types
// for the memory repository.
//
// The interfaces are small and composable: Repository is the full surface the
// agent runtime consumes, while narrower consumers (reports, graph walks) can
// depend on just the piece they need.
package storage

import (
	"context"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Embedder turns text into dense vectors. The postgres store requires one for
// upserts and searches; the llm client satisfies it.
type Embedder interface {
	// EmbedTexts returns one vector per input text, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// MemoryStore provides the write and direct-read operations for memories.
type MemoryStore interface {
	// EnsureIndex creates the index if it does not exist (idempotent).
	// A non-empty description updates the stored one.
	EnsureIndex(ctx context.Context, name, description string) (*types.MemoryIndex, error)

	// UpsertMemories writes a batch of memories into the index. Metadata is
	// merged defaults <- existing <- new, validated, and denormalized into
	// columns; embeddings are computed for every item; dynamics are filled
	// at creation. Returns the memory IDs in input order.
	UpsertMemories(ctx context.Context, index string, items []*types.Memory, defaults map[string]interface{}) ([]string, error)

	// GetMemory fetches a single memory with its relationships populated.
	// Returns ErrNotFound if it does not exist in the index.
	GetMemory(ctx context.Context, index, id string) (*types.Memory, error)

	// GetMemories fetches memories by ID with relationships populated.
	// Missing IDs are silently skipped.
	GetMemories(ctx context.Context, index string, ids []string) ([]*types.Memory, error)

	// DeleteMemories permanently removes memories and their relationship
	// edges, returning the number of memories actually deleted.
	DeleteMemories(ctx context.Context, index string, ids []string) (int, error)

	// UpdateAccessStats bumps access counters, refreshes last_accessed_at,
	// and recomputes current priority for the given memories. It is gated by
	// the store's access-tracking config and never fails the caller; errors
	// are logged and swallowed.
	UpdateAccessStats(ctx context.Context, index string, ids []string)

	// IncrementSleepCycles bumps the refinement-pass counter on the given
	// memories, returning the number of rows touched.
	IncrementSleepCycles(ctx context.Context, index string, ids []string) (int, error)

	// MarkMemoriesSuperseded points the given memories at their replacement,
	// removing them from default search results.
	MarkMemoriesSuperseded(ctx context.Context, index string, ids []string, supersededBy string) (int, error)
}

// SearchProvider performs semantic search over an index.
type SearchProvider interface {
	// SearchMemories returns results ordered by descending cosine
	// similarity, excluding superseded memories. One diagnostics row is
	// emitted through opts.Diagnostics when set.
	SearchMemories(ctx context.Context, index, query string, opts SearchOptions) ([]types.SearchResult, error)
}

// GraphProvider walks the relationship graph.
type GraphProvider interface {
	// GetRelatedMemories returns memories reachable from rootID through
	// relationship edges, deduplicated to their shortest depth and ordered
	// by (depth, id).
	GetRelatedMemories(ctx context.Context, index, rootID string, opts RelatedOptions) ([]RelatedMemory, error)

	// FindRelationshipPath returns the shortest edge path between two
	// memories, or ErrNotFound when no path exists within maxDepth.
	FindRelationshipPath(ctx context.Context, index, sourceID, targetID string, maxDepth int) ([]types.Relationship, error)
}

// Reporter produces the introspection views over an index.
type Reporter interface {
	GetDatabaseInfo(ctx context.Context) (*DatabaseInfo, error)
	ListIndexes(ctx context.Context) ([]types.MemoryIndex, error)
	GetTypeDistribution(ctx context.Context, index string) ([]TypeCount, error)
	GetTopBeliefs(ctx context.Context, index string, limit int) ([]BeliefSummary, error)
	GetEmotionMap(ctx context.Context, index string) ([]EmotionStat, error)
	GetRelationshipGraph(ctx context.Context, index string, maxNodes, maxEdges int) (*GraphSnapshot, error)
	GetPriorityHealth(ctx context.Context, index string) (*PriorityHealth, error)
}

// Repository is the full storage surface used by the agent runtime.
type Repository interface {
	MemoryStore
	SearchProvider
	GraphProvider
	Reporter

	// Close releases resources owned by this store instance. Shared
	// connection pools are torn down separately at process shutdown.
	Close() error
}
