package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject pulls the first complete JSON object out of model
// output, tolerating markdown fences and prose around it. Returns an
// empty string when no balanced object is found.
func ExtractJSONObject(text string) string {
	return extractBalanced(stripFences(text), '{', '}')
}

// ExtractJSONArray pulls the first complete JSON array out of model
// output.
func ExtractJSONArray(text string) string {
	return extractBalanced(stripFences(text), '[', ']')
}

// DecodeObject extracts and unmarshals the first JSON object in text.
func DecodeObject(text string, v interface{}) error {
	raw := ExtractJSONObject(text)
	if raw == "" {
		return fmt.Errorf("llm: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("llm: failed to parse response JSON: %w", err)
	}
	return nil
}

// stripFences removes markdown code fences so the brace scan starts at
// the payload. Handles ```json and bare ``` fences.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop a language tag like "json" on the fence line.
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// extractBalanced scans for the first open delimiter and returns the
// substring through its matching close, tracking string literals and
// escapes so braces inside strings do not count.
func extractBalanced(text string, open, close byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case open:
			if start < 0 {
				start = i
			}
			depth++
		case close:
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return ""
}
