package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerBackend wraps a backend with circuit breaker protection so a blocked
// or failing engine fails fast instead of being hammered.
type BreakerBackend struct {
	inner   domain.SearchEnumerator
	breaker *gobreaker.CircuitBreaker[[]domain.SearchHit]
}

// NewBreakerBackend wraps inner. Zero-valued settings fall back to defaults.
func NewBreakerBackend(inner domain.SearchEnumerator, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerBackend {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[[]domain.SearchHit](gobreaker.Settings{
		Name:        "search:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerBackend{inner: inner, breaker: cb}
}

func (b *BreakerBackend) Name() string { return b.inner.Name() }

func (b *BreakerBackend) Search(ctx context.Context, query string, count int) ([]domain.SearchHit, error) {
	hits, err := b.breaker.Execute(func() ([]domain.SearchHit, error) {
		return b.inner.Search(ctx, query, count)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("backend %q circuit open: %w", b.inner.Name(), err)
		}
		return nil, err
	}
	return hits, nil
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerBackend) State() gobreaker.State {
	return b.breaker.State()
}
