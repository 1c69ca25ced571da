package postgres

import (
	"time"

	"go.uber.org/zap"
)

// defaultSlowQueryThreshold is used when no threshold is configured.
const defaultSlowQueryThreshold = 200 * time.Millisecond

// track wraps an operation in a timing probe. Call the returned func when
// the operation completes; anything slower than the configured threshold is
// logged.
func (s *Store) track(op string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		if elapsed >= s.slowQuery {
			s.log.Warn("slow query",
				zap.String("op", op),
				zap.Duration("elapsed", elapsed),
				zap.Duration("threshold", s.slowQuery),
			)
		}
	}
}
