package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateMemory(cfg, ve)
	validateSearch(cfg, ve)
	validateExtract(cfg, ve)
	validateSplitter(cfg, ve)
	validateMemorize(cfg, ve)
	validatePlugins(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	p := cfg.LLM.Provider
	if p.Model == "" {
		ve.Add("llm.provider.model must not be empty")
	}
	validateURL(ve, "llm.provider.base_url", p.BaseURL)
	if p.Temperature < 0 || p.Temperature > 2 {
		ve.Add("llm.provider.temperature must be in [0, 2], got %g", p.Temperature)
	}
	if p.MaxTokens < 0 {
		ve.Add("llm.provider.max_tokens must be >= 0")
	}
	validateBreaker(ve, "llm.circuit_breaker", cfg.LLM.CircuitBreaker)
}

var validEmbeddingProviders = map[string]bool{
	"openai": true,
	"ollama": true,
}

func validateMemory(cfg *Config, ve *ValidationError) {
	m := cfg.Memory
	if m.DataDir == "" {
		ve.Add("memory.data_dir must not be empty")
	}
	if !validEmbeddingProviders[m.Embedding.Provider] {
		ve.Add("memory.embedding.provider %q is not supported (want openai or ollama)", m.Embedding.Provider)
	}
	if m.Embedding.Model == "" {
		ve.Add("memory.embedding.model must not be empty")
	}
	if m.Embedding.BaseURL != "" {
		validateURL(ve, "memory.embedding.base_url", m.Embedding.BaseURL)
	}
	if m.EmbeddingCacheSize < 0 {
		ve.Add("memory.embedding_cache_size must be >= 0")
	}
	if m.MaxVectorCandidates < 0 {
		ve.Add("memory.max_vector_candidates must be >= 0")
	}
}

var validSearchBackends = map[string]bool{
	"google":     true,
	"duckduckgo": true,
	"searxng":    true,
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	if !validSearchBackends[s.Backend] {
		ve.Add("search.backend %q is not supported (want google, duckduckgo or searxng)", s.Backend)
	}
	if s.Backend == "searxng" {
		validateURL(ve, "search.searxng_url", s.SearXNGURL)
	}
	if s.EnumerateCount <= 0 {
		ve.Add("search.enumerate_count must be > 0")
	}
	if s.Timeout <= 0 {
		ve.Add("search.timeout must be > 0")
	}
	if s.Retry.MaxAttempts < 1 {
		ve.Add("search.retry.max_attempts must be >= 1")
	}
	if s.Retry.InitialDelay < 0 || s.Retry.MaxDelay < 0 {
		ve.Add("search.retry delays must be >= 0")
	}
	if s.Retry.MaxDelay > 0 && s.Retry.InitialDelay > s.Retry.MaxDelay {
		ve.Add("search.retry.initial_delay must be <= max_delay")
	}
	if s.QueriesPerMinute < 0 {
		ve.Add("search.queries_per_minute must be >= 0")
	}
	validateBreaker(ve, "search.circuit_breaker", s.CircuitBreaker)
}

func validateExtract(cfg *Config, ve *ValidationError) {
	e := cfg.Extract
	if e.Timeout <= 0 {
		ve.Add("extract.timeout must be > 0")
	}
	if e.MaxBodySize <= 0 {
		ve.Add("extract.max_body_size must be > 0")
	}
	if e.MaxContentChars <= 0 {
		ve.Add("extract.max_content_chars must be > 0")
	}
	if e.MinContentChars < 0 {
		ve.Add("extract.min_content_chars must be >= 0")
	}
	if e.Concurrency < 1 {
		ve.Add("extract.concurrency must be >= 1")
	}
	if e.RequestsPerSecond < 0 {
		ve.Add("extract.requests_per_second must be >= 0")
	}
	if e.RequestsPerSecond > 0 && e.Burst < 1 {
		ve.Add("extract.burst must be >= 1 when requests_per_second is set")
	}
}

func validateSplitter(cfg *Config, ve *ValidationError) {
	s := cfg.Splitter
	if s.ChunkSize <= 0 {
		ve.Add("splitter.chunk_size must be > 0")
	}
	if s.ChunkOverlap < 0 {
		ve.Add("splitter.chunk_overlap must be >= 0")
	}
	if s.ChunkSize > 0 && s.ChunkOverlap >= s.ChunkSize {
		ve.Add("splitter.chunk_overlap (%d) must be smaller than chunk_size (%d)", s.ChunkOverlap, s.ChunkSize)
	}
	if s.BPETimeout <= 0 {
		ve.Add("splitter.bpe_timeout must be > 0")
	}
}

func validateMemorize(cfg *Config, ve *ValidationError) {
	if cfg.Memorize.NotifyInterval <= 0 {
		ve.Add("memorize.notify_interval must be > 0")
	}
	if cfg.Memorize.InsertInterval < 0 {
		ve.Add("memorize.insert_interval must be >= 0")
	}
}

var validPermissions = map[string]bool{
	"network":    true,
	"memory":     true,
	"filesystem": true,
	"exec":       true,
}

func validatePlugins(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for _, p := range cfg.Plugins.AllowPermissions {
		if !validPermissions[p] {
			ve.Add("plugins.allow_permissions: unknown permission %q", p)
		}
		seen[p] = true
	}
	for _, p := range cfg.Plugins.DenyPermissions {
		if !validPermissions[p] {
			ve.Add("plugins.deny_permissions: unknown permission %q", p)
		}
		if seen[p] {
			ve.Add("plugins: permission %q is both allowed and denied", p)
		}
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not valid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is not valid (want text or json)", cfg.Logger.Format)
	}
	if cfg.Logger.Output == "" {
		ve.Add("logger.output must not be empty")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop":
	default:
		ve.Add("tracer.exporter %q is not valid (want stdout or noop)", cfg.Tracer.Exporter)
	}
}

func validateBreaker(ve *ValidationError, prefix string, cb CircuitBreakerConfig) {
	if !cb.Enabled {
		return
	}
	if cb.Timeout < 0 {
		ve.Add("%s.timeout must be >= 0", prefix)
	}
	if cb.Interval < 0 {
		ve.Add("%s.interval must be >= 0", prefix)
	}
}

func validateURL(ve *ValidationError, field, raw string) {
	if raw == "" {
		ve.Add("%s must not be empty", field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		ve.Add("%s %q is not a valid URL", field, raw)
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		ve.Add("%s must use http or https, got %q", field, u.Scheme)
	}
}
