package storage

import (
	"time"

	"github.com/gregpriday/memory-mcp/pkg/types"
)

// TypeCount is one row of the memory-type distribution.
type TypeCount struct {
	MemoryType types.MemoryType `json:"memoryType"`
	Count      int              `json:"count"`
}

// BeliefSummary is one entry of the top-beliefs report, ordered by current
// priority.
type BeliefSummary struct {
	ID              string           `json:"id"`
	Text            string           `json:"text"`
	MemoryType      types.MemoryType `json:"memoryType"`
	Importance      types.Importance `json:"importance"`
	Stability       types.Stability  `json:"stability"`
	CurrentPriority float64          `json:"currentPriority"`
}

// EmotionStat aggregates memories sharing an emotion label.
type EmotionStat struct {
	Label        string  `json:"label"`
	Count        int     `json:"count"`
	AvgIntensity float64 `json:"avgIntensity"`
}

// GraphNode is a memory as it appears in the relationship-graph snapshot.
// Label is a truncated preview of the memory text.
type GraphNode struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	MemoryType types.MemoryType `json:"memoryType"`
}

// GraphEdge is one relationship in the snapshot.
type GraphEdge struct {
	SourceID   string                 `json:"sourceId"`
	TargetID   string                 `json:"targetId"`
	Type       types.RelationshipType `json:"type"`
	Confidence *float64               `json:"confidence,omitempty"`
}

// GraphSnapshot is a size-capped view of the relationship graph.
type GraphSnapshot struct {
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	Truncated bool        `json:"truncated,omitempty"`
}

// DecayingMemory is a low-priority, long-unaccessed memory flagged by the
// priority-health report.
type DecayingMemory struct {
	ID              string     `json:"id"`
	Text            string     `json:"text"`
	CurrentPriority float64    `json:"currentPriority"`
	LastAccessedAt  *time.Time `json:"lastAccessedAt,omitempty"`
}

// PriorityHealth buckets live memories by current priority (high >= 0.7,
// medium >= 0.3, low below) and lists the decaying set.
type PriorityHealth struct {
	High     int              `json:"high"`
	Medium   int              `json:"medium"`
	Low      int              `json:"low"`
	Decaying []DecayingMemory `json:"decaying,omitempty"`
}

// DatabaseInfo summarizes the store for the active project.
type DatabaseInfo struct {
	Project             string              `json:"project"`
	EmbeddingDimensions int                 `json:"embeddingDimensions"`
	TotalMemories       int                 `json:"totalMemories"`
	Indexes             []types.MemoryIndex `json:"indexes"`
}

// CharacterReport aggregates every introspection view for one index.
type CharacterReport struct {
	Index            string          `json:"index"`
	TypeDistribution []TypeCount     `json:"typeDistribution"`
	TopBeliefs       []BeliefSummary `json:"topBeliefs"`
	Emotions         []EmotionStat   `json:"emotions"`
	Graph            *GraphSnapshot  `json:"graph,omitempty"`
	Priority         *PriorityHealth `json:"priority,omitempty"`
}
