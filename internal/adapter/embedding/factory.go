package embedding

import (
	"fmt"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

// New builds the configured embedding provider wrapped in an LRU cache of
// cfg.EmbeddingCacheSize entries.
func New(cfg config.MemoryConfig) (domain.EmbeddingProvider, error) {
	e := cfg.Embedding
	var p domain.EmbeddingProvider
	switch e.Provider {
	case "openai":
		opts := []OpenAIOption{WithOpenAIModel(e.Model)}
		if e.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(e.BaseURL))
		}
		if e.Dimensions > 0 {
			opts = append(opts, WithOpenAIDimensions(e.Dimensions))
		}
		p = NewOpenAIProvider(e.APIKey, opts...)
	case "ollama":
		opts := []OllamaOption{WithOllamaModel(e.Model)}
		if e.BaseURL != "" {
			opts = append(opts, WithOllamaBaseURL(e.BaseURL))
		}
		if e.Dimensions > 0 {
			opts = append(opts, WithOllamaDimensions(e.Dimensions))
		}
		p = NewOllamaProvider(opts...)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", e.Provider)
	}
	return NewCachedEmbedder(p, cfg.EmbeddingCacheSize), nil
}
