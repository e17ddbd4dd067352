// Package tool holds the host-side tool plumbing (registry, execution
// middleware, param validation) and the web_search tool.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: parse params, start a
// span, run handler, format the result.
//
// The handler may return:
//   - (*domain.ToolResult, nil): returned as-is
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (any other value, nil): JSON-marshaled into a success ToolResult
//   - (nil, error): turned into an error ToolResult with a retryable flag
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, errResult := ParseParams[P](rawParams)
	if errResult != nil {
		tracer.RecordError(span, fmt.Errorf("%s", errResult.Content))
		return errResult, nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		code := domain.ErrorCodeOf(err)
		span.SetAttributes(tracer.StringAttr("error.code", string(code)))
		logger.Warn(spanName+" failed", "error", err, "code", code)

		retryable := classifyToolError(err)
		content := err.Error()
		if retryable {
			content += " (transient error, may succeed on retry)"
		}
		return &domain.ToolResult{IsError: true, IsRetryable: retryable, Content: content}, nil
	}

	return formatResult(span, result)
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v, nil
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}, nil
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				IsError: true,
				Content: fmt.Sprintf("failed to format response: %v", err),
			}, nil
		}
		tracer.SetOK(span)
		return &domain.ToolResult{Content: string(data)}, nil
	}
}

// ParseParams unmarshals rawParams into P. On failure it returns an error
// ToolResult suitable for returning directly.
func ParseParams[P any](rawParams json.RawMessage) (P, *domain.ToolResult) {
	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("invalid params: %v", err),
		}
	}
	return p, nil
}

// ErrResult creates an error ToolResult for validation problems that should
// go back to the caller without a warning log.
func ErrResult(format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{
		IsError: true,
		Content: fmt.Sprintf(format, args...),
	}
}

// TextResult creates a plain text success ToolResult.
func TextResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: s}
}
