package websearch

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

// EngineOptions tune enumeration and extraction.
type EngineOptions struct {
	// EnumerateCount is how many hits to ask the enumerator for, whatever
	// the user's maximum.
	EnumerateCount int
	// Concurrency bounds parallel page extractions.
	Concurrency int
}

// Engine turns enumerated hits into at most max extracted results.
type Engine struct {
	enumerator domain.SearchEnumerator
	extractor  domain.ContentExtractor
	opts       EngineOptions
	logger     *slog.Logger
}

// NewEngine creates an Engine. Zero options default to 10 hits and 1 worker.
func NewEngine(enumerator domain.SearchEnumerator, extractor domain.ContentExtractor, opts EngineOptions, logger *slog.Logger) *Engine {
	if opts.EnumerateCount <= 0 {
		opts.EnumerateCount = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Engine{enumerator: enumerator, extractor: extractor, opts: opts, logger: logger}
}

// Search enumerates hits for query and keeps, in enumerator order, the first
// max hits whose page yields content. Results have unique URLs and 1-based
// contiguous positions. Hits that fail extraction are skipped.
func (e *Engine) Search(ctx context.Context, query string, max int) ([]domain.PageInfo, error) {
	if max <= 0 {
		return nil, domain.NewSubSystemError("search", "Engine.Search", domain.ErrInvalidInput, "max results must be positive")
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewSubSystemError("search", "Engine.Search", domain.ErrInvalidInput, "empty query")
	}

	ctx, span := tracer.StartSpan(ctx, "websearch.engine")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("search.max_results", max))

	hits, err := e.enumerator.Search(ctx, query, e.opts.EnumerateCount)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	results := make([]domain.PageInfo, 0, max)
	seen := make(map[string]bool, max)

	for start := 0; start < len(hits) && len(results) < max; start += e.opts.Concurrency {
		end := min(start+e.opts.Concurrency, len(hits))
		window := hits[start:end]
		contents := e.extractWindow(ctx, window, seen)
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}

		for i, hit := range window {
			if len(results) == max {
				break
			}
			if contents[i] == "" || seen[hit.URL] {
				continue
			}
			seen[hit.URL] = true
			results = append(results, domain.PageInfo{
				URL:         hit.URL,
				Title:       hit.Title,
				Description: hit.Description,
				Content:     contents[i],
				Position:    len(results) + 1,
			})
		}
	}

	span.SetAttributes(tracer.IntAttr("search.hits", len(hits)), tracer.IntAttr("search.results", len(results)))
	tracer.SetOK(span)
	e.logger.Debug("web search completed", "query", query, "hits", len(hits), "results", len(results))
	return results, nil
}

// extractWindow extracts the window's pages concurrently. A failed or
// already-selected hit leaves an empty string at its index.
func (e *Engine) extractWindow(ctx context.Context, window []domain.SearchHit, seen map[string]bool) []string {
	contents := make([]string, len(window))
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, hit := range window {
		if seen[hit.URL] {
			continue
		}
		g.Go(func() error {
			text, err := e.extractor.Extract(ctx, hit.URL)
			if err != nil {
				e.logger.Debug("skipping search hit", "url", hit.URL, "error", err)
				return nil
			}
			contents[i] = text
			return nil
		})
	}
	_ = g.Wait()
	return contents
}
