package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrContentFiltered means the provider refused the turn.
	ErrContentFiltered = errors.New("agent: response blocked by provider content filter")
	// ErrMalformedResponse means the provider returned no finish reason.
	ErrMalformedResponse = errors.New("agent: malformed model response: missing finish reason")
	// ErrToolBudgetExhausted means the loop hit maxToolIterations
	// without a final answer.
	ErrToolBudgetExhausted = errors.New("agent: tool iteration budget exhausted")
	// ErrSearchBudgetExhausted is the sentinel returned to the model
	// once it has used all of its searches.
	ErrSearchBudgetExhausted = errors.New("agent: search iteration budget exhausted")
)

// TruncationError reports a model turn cut off at the token limit,
// with a preview of what was produced.
type TruncationError struct {
	Preview string
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("agent: model response truncated at token limit; preview: %s", e.Preview)
}

func truncationError(content string) *TruncationError {
	const previewLen = 200
	runes := []rune(content)
	if len(runes) > previewLen {
		content = string(runes[:previewLen]) + "..."
	}
	return &TruncationError{Preview: content}
}
