package types

import "time"

// SearchResult pairs a memory with its cosine similarity to the query.
type SearchResult struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// SearchDiagnostics describes a single search execution. One row is emitted
// per search via the repository's diagnostics listener so callers can report
// why a result set looks the way it does.
type SearchDiagnostics struct {
	Query          string        `json:"query"`
	IndexName      string        `json:"index_name"`
	Filter         string        `json:"filter,omitempty"`
	RequestedLimit int           `json:"requested_limit"`
	ResultCount    int           `json:"result_count"`
	TopScore       float64       `json:"top_score,omitempty"`
	BottomScore    float64       `json:"bottom_score,omitempty"`
	Threshold      float64       `json:"threshold,omitempty"`
	FilteredOut    int           `json:"filtered_out,omitempty"`
	Elapsed        time.Duration `json:"elapsed_ms"`
	Timestamp      time.Time     `json:"timestamp"`
}
