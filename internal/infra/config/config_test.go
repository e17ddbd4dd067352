package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Search.EnumerateCount != 10 {
		t.Errorf("EnumerateCount = %d, want 10", cfg.Search.EnumerateCount)
	}
	if cfg.Extract.MaxContentChars != 2000 {
		t.Errorf("MaxContentChars = %d, want 2000", cfg.Extract.MaxContentChars)
	}
	if cfg.Memorize.NotifyInterval != 10*time.Second {
		t.Errorf("NotifyInterval = %v, want 10s", cfg.Memorize.NotifyInterval)
	}
	if cfg.Memorize.InsertInterval != 50*time.Millisecond {
		t.Errorf("InsertInterval = %v, want 50ms", cfg.Memorize.InsertInterval)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-websearch-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.Backend != "google" {
		t.Errorf("expected defaults, got Backend=%q", cfg.Search.Backend)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider:
    base_url: "https://api.groq.com/openai/v1"
    api_key: "test-key"
    model: "llama3-8b"
search:
  backend: "searxng"
  searxng_url: "http://searx.local:8080"
splitter:
  chunk_size: 128
  chunk_overlap: 16
plugins:
  settings:
    websearch:
      search_max_results: 5
      language: "it"
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider.Model != "llama3-8b" {
		t.Errorf("Model = %q, want %q", cfg.LLM.Provider.Model, "llama3-8b")
	}
	if cfg.Search.Backend != "searxng" {
		t.Errorf("Backend = %q, want searxng", cfg.Search.Backend)
	}
	if cfg.Splitter.ChunkSize != 128 || cfg.Splitter.ChunkOverlap != 16 {
		t.Errorf("Splitter = %+v", cfg.Splitter)
	}
	// Unset sections keep their defaults.
	if cfg.Extract.MinContentChars != 50 {
		t.Errorf("MinContentChars = %d, want 50", cfg.Extract.MinContentChars)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}

	raw, err := cfg.Plugins.SettingsFor("websearch")
	if err != nil {
		t.Fatalf("SettingsFor: %v", err)
	}
	if string(raw) != `{"language":"it","search_max_results":5}` {
		t.Errorf("settings = %s", raw)
	}
}

func TestSettingsForMissingPlugin(t *testing.T) {
	raw, err := Defaults().Plugins.SettingsFor("websearch")
	if err != nil {
		t.Fatalf("SettingsFor: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil settings, got %s", raw)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("search: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected permission error for world-writable config")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("search:\n  backend: bing\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("error type = %T, want *ValidationError", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEBSEARCH_SEARCH_BACKEND", "duckduckgo")
	t.Setenv("WEBSEARCH_LOGGER_LEVEL", "debug")
	t.Setenv("WEBSEARCH_SEARCH_TIMEOUT", "3s")
	t.Setenv("WEBSEARCH_EXTRACT_CONCURRENCY", "7")
	t.Setenv("WEBSEARCH_LLM_API_KEY", "sk-env")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Search.Backend != "duckduckgo" {
		t.Errorf("Backend = %q, want duckduckgo", cfg.Search.Backend)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.Search.Timeout != 3*time.Second {
		t.Errorf("Search.Timeout = %v, want 3s", cfg.Search.Timeout)
	}
	if cfg.Extract.Concurrency != 7 {
		t.Errorf("Extract.Concurrency = %d, want 7", cfg.Extract.Concurrency)
	}
	if cfg.LLM.Provider.APIKey != "sk-env" {
		t.Errorf("APIKey = %q, want sk-env", cfg.LLM.Provider.APIKey)
	}
	// OpenAI embeddings share the LLM key when none is set.
	if cfg.Memory.Embedding.APIKey != "sk-env" {
		t.Errorf("Embedding.APIKey = %q, want sk-env", cfg.Memory.Embedding.APIKey)
	}
}

func TestEnvOverridesIgnoreMalformed(t *testing.T) {
	t.Setenv("WEBSEARCH_SEARCH_TIMEOUT", "soon")
	t.Setenv("WEBSEARCH_EXTRACT_CONCURRENCY", "-2")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Search.Timeout != 15*time.Second {
		t.Errorf("Search.Timeout = %v, want default 15s", cfg.Search.Timeout)
	}
	if cfg.Extract.Concurrency != 3 {
		t.Errorf("Extract.Concurrency = %d, want default 3", cfg.Extract.Concurrency)
	}
}

func TestApplyEnvOverridesTracer(t *testing.T) {
	t.Setenv("WEBSEARCH_TRACER_ENABLED", "true")
	t.Setenv("WEBSEARCH_TRACER_EXPORTER", "stdout")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
	if cfg.Tracer.Exporter != "stdout" {
		t.Errorf("Tracer.Exporter = %q, want %q", cfg.Tracer.Exporter, "stdout")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptValue(encrypted, "wrong-pass"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptSecrets(t *testing.T) {
	passphrase := "test-config-key"
	plainAPIKey := "sk-secret123456"

	encrypted, err := EncryptValue(plainAPIKey, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	cfg := Defaults()
	cfg.LLM.Provider.APIKey = "enc:" + encrypted
	cfg.Memory.Embedding.APIKey = "sk-plain-key"

	if err := decryptSecrets(cfg, passphrase); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}

	if cfg.LLM.Provider.APIKey != plainAPIKey {
		t.Errorf("APIKey = %q, want %q", cfg.LLM.Provider.APIKey, plainAPIKey)
	}
	if cfg.Memory.Embedding.APIKey != "sk-plain-key" {
		t.Errorf("plain embedding key should remain unchanged")
	}
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.Memory.Embedding.APIKey = "enc:notvalidhex"

	if err := decryptSecrets(cfg, "passphrase"); err == nil {
		t.Error("expected error for invalid ciphertext")
	}
}
