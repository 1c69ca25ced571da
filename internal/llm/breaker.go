package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the provider breaker is open and
// calls are being rejected without reaching the network.
var ErrCircuitOpen = errors.New("llm: circuit breaker is open")

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	// MaxFailures consecutive failures trip the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxCalls limits probe calls in the half-open state.
	HalfOpenMaxCalls uint32
}

// DefaultBreakerConfig matches the provider failure profile we see in
// practice: trip fast, retry after half a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      3,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// breaker wraps gobreaker with context awareness: an open circuit maps
// to ErrCircuitOpen and context cancellation does not count as a
// provider failure.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string, cfg BreakerConfig) *breaker {
	if cfg.MaxFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	return &breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenMaxCalls,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			IsSuccessful: func(err error) bool {
				// Caller-side cancellation is not a provider fault.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return true
				}
				return err == nil
			},
		}),
	}
}

func (b *breaker) execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.cb.Name())
	}
	return err
}
