// Package embedding provides text embedding clients and an LRU cache.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"websearch/internal/domain"
	"websearch/internal/infra/tracer"
)

const maxEmbedResponseSize = 10 * 1024 * 1024

// postJSON sends reqBody to url and decodes the response into out. Errors
// wrap domain.ErrEmbeddingFailed, plus ErrRateLimit or ErrAuthInvalid when
// the status says so.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", domain.ErrEmbeddingFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrEmbeddingFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: http request: %v", domain.ErrEmbeddingFailed, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxEmbedResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrEmbeddingFailed, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrEmbeddingFailed, domain.ErrRateLimit, respBody)
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrEmbeddingFailed, domain.ErrAuthInvalid, respBody)
	case httpResp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: API error %d: %s", domain.ErrEmbeddingFailed, httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", domain.ErrEmbeddingFailed, err)
	}
	return nil
}

// checkCount verifies the provider returned one vector per input.
func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbeddingFailed, got, want)
	}
	return nil
}

// traced wraps an embedding call in a span.
func traced(ctx context.Context, provider string, n int, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	ctx, span := tracer.StartSpan(ctx, "embedding.embed")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("embedding.provider", provider), tracer.IntAttr("embedding.inputs", n))

	vecs, err := fn(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return vecs, nil
}
