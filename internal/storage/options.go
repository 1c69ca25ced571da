package storage

import "github.com/gregpriday/memory-mcp/pkg/types"

const (
	// DefaultSearchLimit is applied when a search specifies no limit.
	DefaultSearchLimit = 10

	// MaxSearchLimit caps any single search, including LLM-free scans.
	MaxSearchLimit = 1000

	// DefaultRelatedLimit bounds graph traversal result sets.
	DefaultRelatedLimit = 50

	// MaxGraphDepth is the hard ceiling on relationship traversal depth.
	MaxGraphDepth = 10

	// DefaultPathDepth is the default bound for relationship path search.
	DefaultPathDepth = 5
)

// SearchOptions controls a single semantic search.
type SearchOptions struct {
	// Limit is the maximum number of results (default 10, capped at
	// MaxSearchLimit).
	Limit int

	// FilterExpression is an optional DSL predicate compiled into the query.
	FilterExpression string

	// MinScore drops results below the given cosine similarity. Dropped
	// results are counted in the diagnostics row.
	MinScore float64

	// SemanticWeight is accepted for forward compatibility but not applied;
	// ranking is pure cosine similarity.
	SemanticWeight float64

	// SkipAccessTracking suppresses the fire-and-forget access-stat update
	// for returned results.
	SkipAccessTracking bool

	// Diagnostics, when set, receives exactly one row per search.
	Diagnostics func(types.SearchDiagnostics)
}

// Normalize applies defaults and caps.
func (o *SearchOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultSearchLimit
	}
	if o.Limit > MaxSearchLimit {
		o.Limit = MaxSearchLimit
	}
}

// Direction selects which way relationship edges are followed.
type Direction string

// Traversal directions.
const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionBoth     Direction = "both"
)

// RelatedOptions controls graph traversal from a root memory.
type RelatedOptions struct {
	// MaxDepth bounds the walk, clamped to [1, MaxGraphDepth].
	MaxDepth int

	// Direction defaults to forward.
	Direction Direction

	// RelationshipTypes restricts the walk to the given edge types when
	// non-empty.
	RelationshipTypes []types.RelationshipType

	// Limit caps the number of related memories returned.
	Limit int
}

// Normalize applies defaults and clamps.
func (o *RelatedOptions) Normalize() {
	if o.MaxDepth < 1 {
		o.MaxDepth = 1
	}
	if o.MaxDepth > MaxGraphDepth {
		o.MaxDepth = MaxGraphDepth
	}
	switch o.Direction {
	case DirectionForward, DirectionBackward, DirectionBoth:
	default:
		o.Direction = DirectionForward
	}
	if o.Limit <= 0 {
		o.Limit = DefaultRelatedLimit
	}
}

// RelatedMemory is one traversal hit: a memory plus its shortest edge
// distance from the root.
type RelatedMemory struct {
	Memory *types.Memory `json:"memory"`
	Depth  int           `json:"depth"`
}
