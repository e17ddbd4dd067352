package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(config.ProviderConfig{
		Name:        "test",
		BaseURL:     srv.URL + "/",
		APIKey:      "sk-test",
		Model:       "gpt-test",
		Temperature: 0.2,
		MaxTokens:   512,
	}, slog.Default())
}

func TestOpenAIChat(t *testing.T) {
	var got openaiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(openaiResponse{
			ID:      "c1",
			Model:   "gpt-test",
			Created: 1700000000,
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "Rome is in Italy."}}},
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Where is Rome?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rome is in Italy.", resp.Message.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Where is Rome?", got.Messages[0].Content)
}

func TestOpenAIChatRequestOverrides(t *testing.T) {
	var got openaiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}}})
	})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Model: "other", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "other", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
}

func TestOpenAIChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limit", http.StatusTooManyRequests, `{}`, domain.ErrRateLimit},
		{"auth", http.StatusUnauthorized, `{}`, domain.ErrAuthInvalid},
		{"server", http.StatusBadGateway, `bad gateway`, domain.ErrProviderError},
		{"invalid json", http.StatusOK, `not json`, domain.ErrProviderError},
		{"no choices", http.StatusOK, `{"choices":[]}`, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := p.Chat(context.Background(), domain.ChatRequest{})
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestOpenAIChatContextCancelled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOpenAIProviderDefaults(t *testing.T) {
	p := NewOpenAIProvider(config.ProviderConfig{Model: "m"}, slog.Default())
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "https://api.openai.com/v1", p.baseURL)
}
