package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

const maxQueryLength = 500

// Searcher answers a query from live web results.
type Searcher interface {
	Search(ctx context.Context, query string) (*domain.Answer, error)
}

// WebSearchTool searches the web and returns a cited answer straight to the user.
type WebSearchTool struct {
	searcher Searcher
	bus      domain.EventBus
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewWebSearchTool creates the web_search tool. bus and limiter may be nil.
func NewWebSearchTool(searcher Searcher, bus domain.EventBus, limiter *RateLimiter, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{searcher: searcher, bus: bus, limiter: limiter, logger: logger}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Searches the internet for the query the user asks about and answers it " +
		"using only the pages found, with citations and references. " +
		"Input is a valid search query."
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "What to search for on the internet",
					"minLength": 1,
					"maxLength": 500
				}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

// Examples implements domain.IntentTool.
func (t *WebSearchTool) Examples() []string {
	return []string{
		"Search information about",
		"Search on internet what is",
		"Search on internet",
		"Internet",
		"Search",
		"Search on internet informations",
	}
}

// ReturnDirect implements domain.DirectTool.
func (t *WebSearchTool) ReturnDirect() bool { return true }

type webSearchParams struct {
	Query string `json:"query"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params, t.handle)
}

func (t *WebSearchTool) handle(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
	if err := ValidateAll(
		RequireField("query", p.Query),
		ValidateMaxLength("query", p.Query, maxQueryLength),
	); err != nil {
		return ErrResult("%v", err), nil
	}
	if !t.limiter.Allow() {
		return nil, domain.NewSubSystemError("tool", "WebSearchTool.Execute", domain.ErrLimitReached, "too many searches, wait a minute")
	}

	span.SetAttributes(tracer.StringAttr("search.query", p.Query))
	PublishToolEvent(ctx, t.bus, domain.EventToolCallStarted, map[string]string{"tool": t.Name(), "query": p.Query})

	answer, err := t.searcher.Search(ctx, p.Query)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(tracer.IntAttr("search.results", len(answer.Results)))
	PublishToolEvent(ctx, t.bus, domain.EventToolCallCompleted, map[string]any{"tool": t.Name(), "results": len(answer.Results)})

	return &domain.ToolResult{Content: answer.Text, ReturnDirect: true}, nil
}

var (
	_ domain.IntentTool = (*WebSearchTool)(nil)
	_ domain.DirectTool = (*WebSearchTool)(nil)
)
