package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/lib/pq"

	"github.com/gregpriday/memory-mcp/internal/filter"
	"github.com/gregpriday/memory-mcp/internal/storage"
)

// classify maps raw errors onto structured diagnostics so callers can react
// to connection problems, bad filters, and dimension mismatches without
// string matching. Errors that are already sentinels pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, storage.ErrIndexNotFound) ||
		errors.Is(err, storage.ErrInvalidInput) ||
		errors.Is(err, storage.ErrEmbedderRequired) {
		return err
	}

	var compileErr *filter.CompileError
	if errors.As(err, &compileErr) {
		return &storage.Diagnostic{
			Kind:    storage.DiagFilter,
			Message: compileErr.Message,
			Hint:    compileErr.Hint,
			Fixes: []string{
				"check the filter expression syntax",
				"fields must be @id or @metadata.<key>",
			},
			Err: err,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(err, pqErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &storage.Diagnostic{
			Kind:    storage.DiagConnection,
			Message: "database unreachable",
			Hint:    "the server did not respond",
			Fixes: []string{
				"verify DATABASE_URL points at a running PostgreSQL server",
				"check network connectivity and firewall rules",
			},
			Err: err,
		}
	}

	if isDimensionMismatch(err) {
		return dimensionDiagnostic(err)
	}

	return fmt.Errorf("postgres: %w", err)
}

func classifyPostgres(err error, pqErr *pq.Error) error {
	code := string(pqErr.Code)

	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return &storage.Diagnostic{
			Kind:         storage.DiagConnection,
			Message:      pqErr.Message,
			PostgresCode: code,
			Hint:         "the connection to PostgreSQL failed",
			Fixes: []string{
				"verify DATABASE_URL credentials and host",
				"confirm the server accepts connections (pg_hba.conf)",
			},
			Err: err,
		}
	case strings.HasPrefix(code, "28"): // invalid authorization
		return &storage.Diagnostic{
			Kind:         storage.DiagConnection,
			Message:      pqErr.Message,
			PostgresCode: code,
			Hint:         "authentication was rejected",
			Fixes: []string{
				"check the username and password in DATABASE_URL",
			},
			Err: err,
		}
	case strings.HasPrefix(code, "57"): // operator intervention
		return &storage.Diagnostic{
			Kind:         storage.DiagProvider,
			Message:      pqErr.Message,
			PostgresCode: code,
			Hint:         "the server is shutting down or cancelled the query",
			Fixes: []string{
				"retry once the server is back",
			},
			Err: err,
		}
	case strings.HasPrefix(code, "53"): // insufficient resources
		return &storage.Diagnostic{
			Kind:         storage.DiagProvider,
			Message:      pqErr.Message,
			PostgresCode: code,
			Hint:         "the server is out of connections, memory, or disk",
			Fixes: []string{
				"reduce pool size or raise server limits",
			},
			Err: err,
		}
	}

	if isDimensionMismatch(err) {
		d := dimensionDiagnostic(err).(*storage.Diagnostic)
		d.PostgresCode = code
		return d
	}

	return &storage.Diagnostic{
		Kind:         storage.DiagQuery,
		Message:      pqErr.Message,
		PostgresCode: code,
		Hint:         pqErr.Hint,
		Err:          err,
	}
}

// isDimensionMismatch matches pgvector's error for vectors of the wrong
// length.
func isDimensionMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "dimensions") &&
		(strings.Contains(msg, "expected") || strings.Contains(msg, "different"))
}

func dimensionDiagnostic(err error) error {
	return &storage.Diagnostic{
		Kind:    storage.DiagDimension,
		Message: "embedding dimension does not match the schema",
		Hint:    "the vector column was created with a different dimension than the embedder produces",
		Fixes: []string{
			"set MEMORY_EMBEDDING_DIMENSIONS to match the embedding model",
			"re-embed existing memories after changing the dimension",
		},
		Err: err,
	}
}

// sanitizeDSN reduces a connection string to host/port/database so raw
// credentials never reach logs or error messages.
func sanitizeDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "postgres://<redacted>"
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return fmt.Sprintf("postgres://%s", u.Host)
	}
	return fmt.Sprintf("postgres://%s/%s", u.Host, db)
}
