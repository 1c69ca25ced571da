package types

// RelationshipType is the closed set of edge types in the memory graph.
type RelationshipType string

// Relationship types.
const (
	RelSummarizes          RelationshipType = "summarizes"
	RelExampleOf           RelationshipType = "example_of"
	RelIsGeneralizationOf  RelationshipType = "is_generalization_of"
	RelSupports            RelationshipType = "supports"
	RelContradicts         RelationshipType = "contradicts"
	RelCauses              RelationshipType = "causes"
	RelSimilarTo           RelationshipType = "similar_to"
	RelHistoricalVersionOf RelationshipType = "historical_version_of"
	RelDerivedFrom         RelationshipType = "derived_from"
)

// ValidRelationshipTypes lists every accepted relationship type.
var ValidRelationshipTypes = []RelationshipType{
	RelSummarizes, RelExampleOf, RelIsGeneralizationOf, RelSupports,
	RelContradicts, RelCauses, RelSimilarTo, RelHistoricalVersionOf,
	RelDerivedFrom,
}

// IsValidRelationshipType reports whether t is a known relationship type.
func IsValidRelationshipType(t string) bool {
	for _, v := range ValidRelationshipTypes {
		if string(v) == t {
			return true
		}
	}
	return false
}

// Relationship is a directed, typed edge between two memories.
// Edges are unique per (source, target, type, index).
type Relationship struct {
	SourceID string           `json:"source_id"`
	TargetID string           `json:"target_id"`
	Type     RelationshipType `json:"type"`

	// Weight is an optional confidence in [0, 1].
	Weight *float64 `json:"weight,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
