// Package types defines the domain model shared across the memory service:
// memories, relationships, indexes, and search results.
package types

import (
	"strings"
	"time"
)

// MemoryType classifies what a memory is about.
type MemoryType string

// Memory types.
const (
	TypeSelf     MemoryType = "self"     // identity, values, preferences of the agent
	TypeBelief   MemoryType = "belief"   // derived convictions about the world
	TypePattern  MemoryType = "pattern"  // recurring regularities distilled from episodes
	TypeEpisodic MemoryType = "episodic" // concrete events anchored in time
	TypeSemantic MemoryType = "semantic" // general facts and knowledge
)

// ValidMemoryTypes lists every accepted memory type.
var ValidMemoryTypes = []MemoryType{TypeSelf, TypeBelief, TypePattern, TypeEpisodic, TypeSemantic}

// IsValidMemoryType reports whether t is one of the known memory types.
func IsValidMemoryType(t string) bool {
	for _, v := range ValidMemoryTypes {
		if string(v) == t {
			return true
		}
	}
	return false
}

// Kind describes how a memory came to exist.
type Kind string

// Memory kinds.
const (
	KindRaw     Kind = "raw"     // stored as received
	KindSummary Kind = "summary" // condensed from other memories
	KindDerived Kind = "derived" // produced by refinement (patterns, beliefs)
)

// IsValidKind reports whether k is a known kind.
func IsValidKind(k string) bool {
	return k == string(KindRaw) || k == string(KindSummary) || k == string(KindDerived)
}

// Importance is the user-facing three-level importance scale.
// It is persisted as an integer (0/1/2) and surfaced as a string.
type Importance string

// Importance levels.
const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Int returns the persisted integer form (low=0, medium=1, high=2).
// Unknown values map to 0.
func (i Importance) Int() int {
	switch i {
	case ImportanceMedium:
		return 1
	case ImportanceHigh:
		return 2
	default:
		return 0
	}
}

// ImportanceFromInt converts the persisted integer form back to a string level.
func ImportanceFromInt(n int) Importance {
	switch n {
	case 1:
		return ImportanceMedium
	case 2:
		return ImportanceHigh
	default:
		return ImportanceLow
	}
}

// IsValidImportance reports whether s is a known importance level.
func IsValidImportance(s string) bool {
	return s == string(ImportanceLow) || s == string(ImportanceMedium) || s == string(ImportanceHigh)
}

// Source identifies where a memory originated.
type Source string

// Memory sources.
const (
	SourceUser   Source = "user"
	SourceFile   Source = "file"
	SourceSystem Source = "system"
)

// IsValidSource reports whether s is a known source.
func IsValidSource(s string) bool {
	return s == string(SourceUser) || s == string(SourceFile) || s == string(SourceSystem)
}

// Stability is the lifecycle stability of a memory's content.
type Stability string

// Stability levels.
const (
	StabilityTentative Stability = "tentative"
	StabilityStable    Stability = "stable"
	StabilityCanonical Stability = "canonical"
)

// IsValidStability reports whether s is a known stability level.
func IsValidStability(s string) bool {
	return s == string(StabilityTentative) || s == string(StabilityStable) || s == string(StabilityCanonical)
}

// SystemIDPrefix marks memory IDs owned by the system itself.
// System memories are never deleted or merged away.
const SystemIDPrefix = "sys_"

// IsSystemMemory reports whether a memory is system-owned, either by ID
// prefix or by source.
func IsSystemMemory(id string, source Source) bool {
	return strings.HasPrefix(id, SystemIDPrefix) || source == SourceSystem
}

// Content is the textual payload of a memory plus the time the underlying
// event occurred (distinct from when the row was created).
type Content struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Emotion captures the optional affective coloring of a memory.
// Intensity, when present, is in [0, 1].
type Emotion struct {
	Label     string   `json:"label,omitempty"`
	Intensity *float64 `json:"intensity,omitempty"`
}

// Dynamics holds the lifecycle fields that govern retrieval salience.
// Dynamics live in denormalized columns, never inside the metadata JSON blob.
type Dynamics struct {
	InitialPriority float64    `json:"initial_priority"`
	CurrentPriority float64    `json:"current_priority"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAccessedAt  *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount     int        `json:"access_count"`
	MaxAccessCount  int        `json:"max_access_count"`
	Stability       Stability  `json:"stability"`
	SleepCycles     int        `json:"sleep_cycles"`
}

// Memory is the atomic unit of storage: one text statement plus metadata,
// dynamics, and a vector embedding.
type Memory struct {
	ID        string  `json:"id"`
	IndexName string  `json:"index_name"`
	Content   Content `json:"content"`

	// Embedding is the dense vector for semantic search. Omitted from most
	// read paths; only search and upsert touch it.
	Embedding []float32 `json:"embedding,omitempty"`

	MemoryType MemoryType `json:"memory_type"`
	Kind       Kind       `json:"kind"`
	Importance Importance `json:"importance"`

	Tags       []string `json:"tags,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	Source     Source   `json:"source,omitempty"`
	SourcePath string   `json:"source_path,omitempty"`
	Channel    string   `json:"channel,omitempty"`

	Emotion  Emotion  `json:"emotion,omitempty"`
	Dynamics Dynamics `json:"dynamics"`

	// DerivedFromIDs names the source memories for summaries, patterns,
	// and beliefs.
	DerivedFromIDs []string `json:"derived_from_ids,omitempty"`

	// SupersededByID points to a replacing memory. Memories with a non-empty
	// value are excluded from default search results.
	SupersededByID string `json:"superseded_by_id,omitempty"`

	// Metadata carries free-form fields. The dynamics block is always
	// stripped before persistence so the columns stay authoritative.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Relationships holds the outgoing edges for this memory. Populated on
	// reads; on writes it is driven by metadata (see relationship sync).
	Relationships []Relationship `json:"relationships,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IsSystem reports whether this memory is system-owned.
func (m *Memory) IsSystem() bool {
	return IsSystemMemory(m.ID, m.Source)
}
