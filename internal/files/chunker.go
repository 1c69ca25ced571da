package files

import "strings"

const (
	// DefaultChunkSize is the character window for large-file analysis.
	DefaultChunkSize = 16000
	// DefaultOverlap carries trailing context into the next chunk.
	DefaultOverlap = 2000
	// MaxChunks caps analysis work per file. Content past the cap is
	// not analyzed.
	MaxChunks = 24
)

// Chunker splits large text into overlapping windows, preferring to
// cut on sentence or line boundaries.
type Chunker struct {
	ChunkSize int
	Overlap   int
}

// NewChunker returns a chunker with the default window and overlap.
func NewChunker() *Chunker {
	return &Chunker{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

// Split returns at most MaxChunks windows covering text. Short input
// comes back as a single chunk.
func (c *Chunker) Split(text string) []string {
	size := c.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = size / 8
	}

	runes := []rune(text)
	if len(runes) <= size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) && len(chunks) < MaxChunks {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := boundaryBefore(runes, start+size/2, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// EstimateTokens approximates the token count of text at four
// characters per token, rounding up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// boundaryBefore finds a cut point at or before limit, searching back
// to floor. Prefers a paragraph break, then a sentence end, then a
// space; falls back to a hard cut at limit.
func boundaryBefore(runes []rune, floor, limit int) int {
	lastSpace := -1
	lastSentence := -1
	for i := limit - 1; i >= floor; i-- {
		switch runes[i] {
		case '\n':
			if i > 0 && runes[i-1] == '\n' {
				return i + 1
			}
			if lastSentence < 0 {
				lastSentence = i + 1
			}
		case '.', '!', '?':
			if lastSentence < 0 && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n') {
				lastSentence = i + 1
			}
		case ' ':
			if lastSpace < 0 {
				lastSpace = i + 1
			}
		}
	}
	if lastSentence >= 0 {
		return lastSentence
	}
	if lastSpace >= 0 {
		return lastSpace
	}
	return limit
}
