package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Search   SearchConfig   `yaml:"search"`
	Extract  ExtractConfig  `yaml:"extract"`
	Splitter SplitterConfig `yaml:"splitter"`
	Memorize MemorizeConfig `yaml:"memorize"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// LLMConfig holds the answer-generation model settings.
type LLMConfig struct {
	Provider       ProviderConfig       `yaml:"provider"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for remote calls.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for an OpenAI-compatible LLM endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// MemoryConfig holds vector memory settings.
type MemoryConfig struct {
	DataDir             string          `yaml:"data_dir"`
	Embedding           EmbeddingConfig `yaml:"embedding"`
	EmbeddingCacheSize  int             `yaml:"embedding_cache_size"`  // 0 = disabled
	MaxVectorCandidates int             `yaml:"max_vector_candidates"` // 0 = default (10000)
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", "ollama"
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// SearchConfig holds the search-results enumerator settings.
type SearchConfig struct {
	Backend        string               `yaml:"backend"` // "google", "duckduckgo", "searxng"
	EnumerateCount int                  `yaml:"enumerate_count"`
	Language       string               `yaml:"language"`
	SafeSearch     bool                 `yaml:"safe_search"`
	SearXNGURL     string               `yaml:"searxng_url"`
	UserAgent      string               `yaml:"user_agent"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`

	// QueriesPerMinute caps web_search tool calls; 0 disables the cap.
	QueriesPerMinute int `yaml:"queries_per_minute"`
}

// RetryConfig holds exponential backoff settings.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// ExtractConfig holds the content extractor settings.
type ExtractConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxBodySize       int64         `yaml:"max_body_size"`
	MaxContentChars   int           `yaml:"max_content_chars"`
	MinContentChars   int           `yaml:"min_content_chars"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // per host
	Burst             int           `yaml:"burst"`
	UserAgent         string        `yaml:"user_agent"`
}

// SplitterConfig holds text chunking settings.
type SplitterConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Encoding     string `yaml:"encoding"`
	// BPECacheDir holds downloaded encoding files. Empty means
	// $TIKTOKEN_CACHE_DIR, else the user cache dir.
	BPECacheDir string `yaml:"bpe_cache_dir"`
	// BPETimeout bounds the one-time encoding download.
	BPETimeout time.Duration `yaml:"bpe_timeout"`
}

// MemorizeConfig holds document storage pacing settings.
type MemorizeConfig struct {
	NotifyInterval time.Duration `yaml:"notify_interval"`
	InsertInterval time.Duration `yaml:"insert_interval"`
}

// PluginsConfig holds plugin system settings.
type PluginsConfig struct {
	AllowPermissions []string                  `yaml:"allow_permissions"`
	DenyPermissions  []string                  `yaml:"deny_permissions"`
	Settings         map[string]map[string]any `yaml:"settings,omitempty"`
}

// SettingsFor returns the named plugin's settings as JSON, or nil when unset.
func (p PluginsConfig) SettingsFor(name string) (json.RawMessage, error) {
	s, ok := p.Settings[name]
	if !ok || len(s) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s settings: %w", name, err)
	}
	return data, nil
}

// MCPConfig holds the MCP server settings.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.websearch/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".websearch", "data")
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: ProviderConfig{
				Name:    "openai",
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			CircuitBreaker: CircuitBreakerConfig{Enabled: true},
		},
		Memory: MemoryConfig{
			DataDir: defaultDataDir(),
			Embedding: EmbeddingConfig{
				Provider: "openai",
				Model:    "text-embedding-3-small",
			},
			EmbeddingCacheSize: 256,
		},
		Search: SearchConfig{
			Backend:        "google",
			EnumerateCount: 10,
			Language:       "en",
			SafeSearch:     false,
			SearXNGURL:     "http://localhost:8888",
			UserAgent:      defaultUserAgent,
			Timeout:        15 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{Enabled: true},
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 250 * time.Millisecond,
				MaxDelay:     5 * time.Second,
			},
			QueriesPerMinute: 20,
		},
		Extract: ExtractConfig{
			Timeout:           20 * time.Second,
			MaxBodySize:       2 * 1024 * 1024,
			MaxContentChars:   2000,
			MinContentChars:   50,
			Concurrency:       3,
			RequestsPerSecond: 2,
			Burst:             2,
			UserAgent:         defaultUserAgent,
		},
		Splitter: SplitterConfig{
			ChunkSize:    256,
			ChunkOverlap: 64,
			Encoding:     "cl100k_base",
			BPETimeout:   10 * time.Second,
		},
		Memorize: MemorizeConfig{
			NotifyInterval: 10 * time.Second,
			InsertInterval: 50 * time.Millisecond,
		},
		MCP: MCPConfig{
			Name:    "websearch",
			Version: "1.0.0",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults (plus env overrides).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("WEBSEARCH_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps WEBSEARCH_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBSEARCH_LLM_BASE_URL"); v != "" {
		cfg.LLM.Provider.BaseURL = v
	}
	if v := os.Getenv("WEBSEARCH_LLM_MODEL"); v != "" {
		cfg.LLM.Provider.Model = v
	}
	if v := os.Getenv("WEBSEARCH_LLM_API_KEY"); v != "" {
		cfg.LLM.Provider.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.Provider.APIKey == "" {
		cfg.LLM.Provider.APIKey = v
	}
	if v := os.Getenv("WEBSEARCH_EMBEDDING_PROVIDER"); v != "" {
		cfg.Memory.Embedding.Provider = v
	}
	if v := os.Getenv("WEBSEARCH_EMBEDDING_API_KEY"); v != "" {
		cfg.Memory.Embedding.APIKey = v
	} else if cfg.Memory.Embedding.APIKey == "" && cfg.Memory.Embedding.Provider == "openai" {
		cfg.Memory.Embedding.APIKey = cfg.LLM.Provider.APIKey
	}
	if v := os.Getenv("WEBSEARCH_MEMORY_DATA_DIR"); v != "" {
		cfg.Memory.DataDir = v
	}
	if v := os.Getenv("WEBSEARCH_SEARCH_BACKEND"); v != "" {
		cfg.Search.Backend = v
	}
	if v := os.Getenv("WEBSEARCH_SEARXNG_URL"); v != "" {
		cfg.Search.SearXNGURL = v
	}
	if v := os.Getenv("WEBSEARCH_SEARCH_LANGUAGE"); v != "" {
		cfg.Search.Language = v
	}
	if v := os.Getenv("WEBSEARCH_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Search.Timeout = d
		}
	}
	if v := os.Getenv("WEBSEARCH_EXTRACT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Extract.Concurrency = n
		}
	}
	if v := os.Getenv("WEBSEARCH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WEBSEARCH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WEBSEARCH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WEBSEARCH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// decryptSecrets finds "enc:..." values in API keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := map[string]*string{
		"llm api_key":       &cfg.LLM.Provider.APIKey,
		"embedding api_key": &cfg.Memory.Embedding.APIKey,
	}
	for name, fp := range secrets {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
