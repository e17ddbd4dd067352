// Package search implements the search-results enumerators: scrapers for
// Google and DuckDuckGo result pages and a SearXNG JSON client, plus retry
// and circuit-breaker decorators.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
	"websearch/internal/infra/middleware"
	"websearch/internal/infra/tracer"
)

// Enumerator is the outermost decorator: it traces each call, validates the
// request and converts failures to domain.ErrSearchFailed.
type Enumerator struct {
	inner  domain.SearchEnumerator
	logger *slog.Logger
}

func (e *Enumerator) Name() string { return e.inner.Name() }

func (e *Enumerator) Search(ctx context.Context, query string, count int) ([]domain.SearchHit, error) {
	ctx, span := tracer.StartSpan(ctx, "search.enumerate")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("search.backend", e.inner.Name()),
		tracer.IntAttr("search.count", count),
	)

	if strings.TrimSpace(query) == "" {
		err := domain.NewSubSystemError("search", "Enumerator.Search", domain.ErrInvalidInput, "empty query")
		tracer.RecordError(span, err)
		return nil, err
	}
	if count <= 0 {
		err := domain.NewSubSystemError("search", "Enumerator.Search", domain.ErrInvalidInput, "count must be positive")
		tracer.RecordError(span, err)
		return nil, err
	}

	hits, err := e.inner.Search(ctx, query, count)
	if err != nil {
		e.logger.Warn("search backend failed", "backend", e.inner.Name(), "error", err)
		wrapped := wrapFailure("Enumerator.Search", err)
		tracer.RecordError(span, wrapped)
		return nil, wrapped
	}
	if len(hits) > count {
		hits = hits[:count]
	}
	span.SetAttributes(tracer.IntAttr("search.hits", len(hits)))
	tracer.SetOK(span)
	return hits, nil
}

// New builds the configured backend wrapped in retry, circuit breaker and
// error translation. client is shared by all backends; when nil a client with
// cfg.Timeout and browser-like headers is created.
func New(cfg config.SearchConfig, client *http.Client, logger *slog.Logger) (*Enumerator, error) {
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: middleware.BrowserHeaders(cfg.UserAgent, nil),
		}
	}

	var backend domain.SearchEnumerator
	switch cfg.Backend {
	case "google", "":
		backend = NewGoogleBackend(client, cfg.Language, cfg.SafeSearch, logger)
	case "duckduckgo":
		backend = NewDuckDuckGoBackend(client, "", duckDuckGoRegion(cfg.Language), cfg.SafeSearch, logger)
	case "searxng":
		backend = NewSearXNGBackend(client, cfg.SearXNGURL, cfg.Language, cfg.SafeSearch, logger)
	default:
		return nil, fmt.Errorf("unsupported search backend: %q", cfg.Backend)
	}

	return Wrap(backend, cfg, logger), nil
}

// Wrap decorates an arbitrary backend the same way New does.
func Wrap(backend domain.SearchEnumerator, cfg config.SearchConfig, logger *slog.Logger) *Enumerator {
	backend = NewRetryBackend(backend, cfg.Retry, logger)
	if cfg.CircuitBreaker.Enabled {
		backend = NewBreakerBackend(backend, cfg.CircuitBreaker, logger)
	}
	return &Enumerator{inner: backend, logger: logger}
}

// duckDuckGoRegion maps a language code to DuckDuckGo's region parameter.
func duckDuckGoRegion(lang string) string {
	switch strings.ToLower(lang) {
	case "":
		return ""
	case "en":
		return "us-en"
	default:
		l := strings.ToLower(lang)
		return l + "-" + l
	}
}
