// Package extract downloads result pages and reduces them to readable text.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
	"websearch/internal/infra/middleware"
	"websearch/internal/infra/tracer"
	"websearch/internal/security"
)

// Options tune fetching and extraction.
type Options struct {
	Timeout         time.Duration
	MaxBodySize     int64
	MaxContentChars int
	MinContentChars int
	UserAgent       string
}

// OptionsFromConfig maps the extract config section to Options.
func OptionsFromConfig(cfg config.ExtractConfig) Options {
	return Options{
		Timeout:         cfg.Timeout,
		MaxBodySize:     cfg.MaxBodySize,
		MaxContentChars: cfg.MaxContentChars,
		MinContentChars: cfg.MinContentChars,
		UserAgent:       cfg.UserAgent,
	}
}

// Extractor implements domain.ContentExtractor.
type Extractor struct {
	fetcher *Fetcher
	opts    Options
	logger  *slog.Logger
}

// New creates an extractor with an SSRF-guarded, rate-limited fetcher.
func New(ctx context.Context, cfg config.ExtractConfig, guard *security.URLGuard, logger *slog.Logger) *Extractor {
	opts := OptionsFromConfig(cfg)
	limiter := middleware.NewHostRateLimiter(ctx, middleware.HostRateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	return NewWithFetcher(NewFetcher(guard, limiter, opts, logger), opts, logger)
}

// NewWithFetcher creates an extractor around an existing fetcher.
func NewWithFetcher(f *Fetcher, opts Options, logger *slog.Logger) *Extractor {
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 2000
	}
	return &Extractor{fetcher: f, opts: opts, logger: logger}
}

// Extract fetches url and returns its main text truncated to MaxContentChars
// runes. Pages without readable text yield domain.ErrNoContent.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "extract.page")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("extract.url", url))

	p, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	var text string
	if p.MediaType == "text/plain" {
		text = normalize(string(p.Body))
	} else {
		text = Text(p.Body, e.opts.MinContentChars)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		err := fetchError("Extractor.Extract", domain.ErrNoContent, url)
		tracer.RecordError(span, err)
		return "", err
	}

	text = Truncate(text, e.opts.MaxContentChars)
	span.SetAttributes(tracer.IntAttr("extract.chars", len([]rune(text))))
	tracer.SetOK(span)
	e.logger.Debug("content extracted", "url", url, "chars", len([]rune(text)))
	return text, nil
}

var _ domain.ContentExtractor = (*Extractor)(nil)
