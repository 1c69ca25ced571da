package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by repository implementations.
var (
	// ErrNotFound indicates the requested memory does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrIndexNotFound indicates the named index does not exist for the
	// active project.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidInput indicates the caller provided invalid data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbedderRequired indicates an operation needed embeddings but no
	// embedding provider is configured.
	ErrEmbedderRequired = errors.New("embedder_required: no embedding provider configured")
)

// DiagnosticKind classifies a storage failure for callers that want to react
// differently to connection problems vs. bad filters.
type DiagnosticKind string

// Diagnostic kinds.
const (
	DiagConnection DiagnosticKind = "connection"
	DiagProvider   DiagnosticKind = "provider"
	DiagDimension  DiagnosticKind = "dimension_mismatch"
	DiagFilter     DiagnosticKind = "filter"
	DiagQuery      DiagnosticKind = "query"
)

// Diagnostic is a classified storage error with remediation hints. Raw
// connection strings never appear in a Diagnostic; implementations sanitize
// them to host/port/database before surfacing.
type Diagnostic struct {
	Kind         DiagnosticKind
	Message      string
	PostgresCode string
	Hint         string
	Fixes        []string
	Err          error
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", d.Kind, d.Message)
	if d.PostgresCode != "" {
		fmt.Fprintf(&b, " (code %s)", d.PostgresCode)
	}
	if d.Hint != "" {
		fmt.Fprintf(&b, ": %s", d.Hint)
	}
	return b.String()
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}
