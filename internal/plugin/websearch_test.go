package plugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/adapter/memory/vector"
	"websearch/internal/adapter/text"
	"websearch/internal/adapter/tool"
	"websearch/internal/domain"
	"websearch/internal/infra/config"
	"websearch/internal/usecase/websearch"
)

type stubEnumerator struct{ hits []domain.SearchHit }

func (s stubEnumerator) Search(context.Context, string, int) ([]domain.SearchHit, error) {
	return s.hits, nil
}
func (stubEnumerator) Name() string { return "stub" }

type stubExtractor map[string]string

func (s stubExtractor) Extract(_ context.Context, url string) (string, error) {
	if txt, ok := s[url]; ok {
		return txt, nil
	}
	return "", domain.ErrFetchFailed
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		l := strings.ToLower(t)
		out[i] = []float32{float32(strings.Count(l, "go")), float32(strings.Count(l, "rust")), 0.1}
	}
	return out, nil
}
func (stubEmbedder) Dimensions() int { return 3 }
func (stubEmbedder) Name() string    { return "stub" }

type stubLLM struct{ reply string }

func (s stubLLM) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: s.reply}}, nil
}
func (stubLLM) Name() string { return "stub" }

type pluginHarness struct {
	mgr    *Manager
	plugin *WebSearchPlugin
	reg    *tool.Registry
	mem    *vector.Memory
}

func newPluginHarness(t *testing.T, settings map[string]any, qpm int) *pluginHarness {
	t.Helper()
	mem, err := vector.New(filepath.Join(t.TempDir(), "vectors.db"), slog.Default(), vector.Options{EmbedderName: "stub", Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	reg := tool.NewRegistry(slog.Default())
	cfg := config.PluginsConfig{AllowPermissions: []string{"network", "memory"}}
	if settings != nil {
		cfg.Settings = map[string]map[string]any{WebSearchName: settings}
	}
	mgr := NewManager(slog.Default(), nil, domain.PluginDeps{
		Tools:    reg,
		LLM:      stubLLM{reply: "Go is a language."},
		Embedder: stubEmbedder{},
		Memory:   mem,
	}, cfg)

	p := NewWebSearchPlugin(WebSearchOptions{
		Enumerator: stubEnumerator{hits: []domain.SearchHit{
			{URL: "https://go.dev", Title: "Go"},
			{URL: "https://rust-lang.org", Title: "Rust"},
		}},
		Extractor: stubExtractor{
			"https://go.dev":        "Go is an open source programming language.",
			"https://rust-lang.org": "Rust is a systems language.",
		},
		Splitter:         text.NewWithLength(200, 20, utf8.RuneCountInString),
		Memorize:         websearch.MemorizerOptions{NotifyInterval: time.Minute},
		QueriesPerMinute: qpm,
	})
	require.NoError(t, mgr.Load(p))
	return &pluginHarness{mgr: mgr, plugin: p, reg: reg, mem: mem}
}

func TestWebSearchPluginRegistersTool(t *testing.T) {
	h := newPluginHarness(t, nil, 0)

	got, err := h.reg.Get("web_search")
	require.NoError(t, err)
	dt, ok := got.(domain.DirectTool)
	require.True(t, ok)
	assert.True(t, dt.ReturnDirect())
	it, ok := got.(domain.IntentTool)
	require.True(t, ok)
	assert.Contains(t, it.Examples(), "Search on internet")

	assert.Equal(t, websearch.DefaultSettings(), h.plugin.Service().Settings())
}

func TestWebSearchPluginAnswersThroughTool(t *testing.T) {
	h := newPluginHarness(t, map[string]any{"search_max_results": 2}, 0)
	got, err := h.reg.Get("web_search")
	require.NoError(t, err)

	res, err := got.Execute(context.Background(), json.RawMessage(`{"query":"what is go"}`))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Content)
	assert.True(t, res.ReturnDirect)
	assert.True(t, strings.HasPrefix(res.Content, "Go is a language.<br>Citation: "))
	assert.Contains(t, res.Content, `<a href="https://go.dev" target="_blank">Go</a>`)
	assert.Contains(t, res.Content, "<br>References:<br><a href='https://go.dev' target='_blank'>Go</a>\n<a href='https://rust-lang.org' target='_blank'>Rust</a>")

	coll, err := h.mem.Collection(websearch.SearchCollection)
	require.NoError(t, err)
	points, err := coll.GetAllPoints(context.Background())
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestWebSearchPluginRejectsBadParams(t *testing.T) {
	h := newPluginHarness(t, nil, 0)
	got, _ := h.reg.Get("web_search")

	res, err := got.Execute(context.Background(), json.RawMessage(`{"query":""}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = got.Execute(context.Background(), json.RawMessage(`{"q":"go"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestWebSearchPluginQueryRateLimit(t *testing.T) {
	h := newPluginHarness(t, map[string]any{"search_max_results": 1}, 1)
	got, _ := h.reg.Get("web_search")

	res, err := got.Execute(context.Background(), json.RawMessage(`{"query":"go"}`))
	require.NoError(t, err)
	require.False(t, res.IsError, res.Content)

	res, err = got.Execute(context.Background(), json.RawMessage(`{"query":"go"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.True(t, res.IsRetryable)
}

func TestWebSearchPluginInvalidSettings(t *testing.T) {
	mgr := NewManager(slog.Default(), nil, domain.PluginDeps{
		Tools: tool.NewRegistry(slog.Default()), LLM: stubLLM{}, Embedder: stubEmbedder{}, Memory: &vector.Memory{},
	}, config.PluginsConfig{Settings: map[string]map[string]any{WebSearchName: {"search_max_results": 50}}})

	p := NewWebSearchPlugin(WebSearchOptions{
		Enumerator: stubEnumerator{}, Extractor: stubExtractor{}, Splitter: text.NewWithLength(10, 0, utf8.RuneCountInString),
	})
	err := mgr.Load(p)
	assert.ErrorIs(t, err, domain.ErrSettingsInvalid)
	assert.Empty(t, mgr.List())
}

func TestWebSearchPluginMissingDeps(t *testing.T) {
	mgr := NewManager(slog.Default(), nil, domain.PluginDeps{}, config.PluginsConfig{})
	err := mgr.Load(NewWebSearchPlugin(WebSearchOptions{}))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWebSearchPluginUpdateSettings(t *testing.T) {
	h := newPluginHarness(t, nil, 0)

	require.NoError(t, h.plugin.UpdateSettings(json.RawMessage(`{"search_max_results": 7, "language": "it"}`)))
	assert.Equal(t, websearch.Settings{MaxResults: 7, Language: "it"}, h.plugin.Service().Settings())

	err := h.plugin.UpdateSettings(json.RawMessage(`{"language": "fr"}`))
	assert.ErrorIs(t, err, domain.ErrSettingsInvalid)
	assert.Equal(t, 7, h.plugin.Service().Settings().MaxResults)

	require.NoError(t, h.mgr.Unload(WebSearchName))
	assert.Nil(t, h.plugin.Service())
	assert.ErrorIs(t, h.plugin.UpdateSettings(nil), domain.ErrNotFound)
}

func TestParseSettings(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    websearch.Settings
		wantErr bool
	}{
		{name: "empty", raw: "", want: websearch.DefaultSettings()},
		{name: "null", raw: "null", want: websearch.DefaultSettings()},
		{name: "partial", raw: `{"search_max_results": 5}`, want: websearch.Settings{MaxResults: 5, Language: "en"}},
		{name: "full", raw: `{"search_max_results": 1, "language": "it"}`, want: websearch.Settings{MaxResults: 1, Language: "it"}},
		{name: "too many", raw: `{"search_max_results": 11}`, wantErr: true},
		{name: "zero", raw: `{"search_max_results": 0}`, wantErr: true},
		{name: "not a number", raw: `{"search_max_results": "3"}`, wantErr: true},
		{name: "unknown key", raw: `{"max": 3}`, wantErr: true},
		{name: "malformed", raw: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSettings(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrSettingsInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
