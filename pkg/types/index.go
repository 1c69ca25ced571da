package types

// MemoryIndex is a named namespace within a tenant project. Indexes own
// memories and are created on demand.
type MemoryIndex struct {
	ID          int64  `json:"id"`
	Project     string `json:"project"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemoryCount int    `json:"memory_count,omitempty"`
}
