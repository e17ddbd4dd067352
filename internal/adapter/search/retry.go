package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

// RetryBackend retries transient backend failures with exponential backoff.
type RetryBackend struct {
	inner        domain.SearchEnumerator
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRetryBackend wraps inner. MaxAttempts below 1 is treated as 1.
func NewRetryBackend(inner domain.SearchEnumerator, cfg config.RetryConfig, logger *slog.Logger) *RetryBackend {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &RetryBackend{
		inner:        inner,
		maxAttempts:  attempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		logger:       logger,
		sleep:        sleepCtx,
	}
}

func (r *RetryBackend) Name() string { return r.inner.Name() }

func (r *RetryBackend) Search(ctx context.Context, query string, count int) ([]domain.SearchHit, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		hits, err := r.inner.Search(ctx, query, count)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("search succeeded after retry", "backend", r.inner.Name(), "attempt", attempt)
			}
			return hits, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			return nil, err
		}
		if attempt == r.maxAttempts {
			break
		}

		delay := backoff(attempt, r.initialDelay, r.maxDelay)
		r.logger.Warn("retrying search after error",
			"backend", r.inner.Name(),
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"retry_delay", delay,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("search failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// backoff doubles the delay per attempt, caps it at max and adds ±10% jitter.
func backoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		return 0
	}
	d := initial << (attempt - 1)
	if d <= 0 || (max > 0 && d > max) {
		d = max
	}
	jitter := time.Duration(float64(d) * 0.1 * (2*rand.Float64() - 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
