package redis

import (
	"errors"

	"bank-ledger/config"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Breaker trips after consecutive Redis failures so callers fail fast
// instead of waiting on a dead connection for every request.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// NewBreaker creates a breaker named after the guarded dependency.
func NewBreaker(name string, cfg config.BreakerConfig, log zerolog.Logger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := log.Info()
			if to == gobreaker.StateOpen {
				event = log.Warn()
			}
			event.Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})}
}

// State reports the breaker state (closed, half-open, open).
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// IsOpen reports whether err was returned without calling Redis.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// execute runs fn through b. A nil breaker calls fn directly.
func execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
