package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"websearch/internal/adapter/tool"
	"websearch/internal/domain"
	"websearch/internal/usecase/websearch"
)

// WebSearchName is the websearch plugin's manifest name and settings key.
const WebSearchName = "websearch"

// settingsSchema describes the user-facing settings of the websearch plugin.
var settingsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "search_max_results": {
      "title": "Max number of results",
      "type": "integer",
      "minimum": 1,
      "maximum": 10,
      "default": 3
    },
    "language": {
      "title": "Answer language",
      "type": "string",
      "enum": ["en", "it"],
      "default": "en"
    }
  },
  "additionalProperties": false
}`)

// compiledSettings is compiled on first use.
var compiledSettings = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile(settingsSchema)
})

// ParseSettings validates raw against the settings schema and overlays it on
// the defaults. Empty input yields the defaults.
func ParseSettings(raw json.RawMessage) (websearch.Settings, error) {
	settings := websearch.DefaultSettings()
	if len(raw) == 0 || string(raw) == "null" {
		return settings, nil
	}

	schema, err := compiledSettings()
	if err != nil {
		return settings, fmt.Errorf("compile settings schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return settings, domain.NewSubSystemError("plugin", "ParseSettings", domain.ErrSettingsInvalid, err.Error())
	}
	if result := schema.Validate(doc); !result.IsValid() {
		return settings, domain.NewSubSystemError("plugin", "ParseSettings", domain.ErrSettingsInvalid, result.Error())
	}

	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, domain.NewSubSystemError("plugin", "ParseSettings", domain.ErrSettingsInvalid, err.Error())
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// WebSearchOptions are the host-side collaborators the plugin cannot get
// from domain.PluginDeps.
type WebSearchOptions struct {
	Enumerator       domain.SearchEnumerator
	Extractor        domain.ContentExtractor
	Splitter         websearch.Splitter
	Engine           websearch.EngineOptions
	Memorize         websearch.MemorizerOptions
	QueriesPerMinute int
}

// WebSearchPlugin registers the web_search tool with the host.
type WebSearchPlugin struct {
	opts WebSearchOptions

	mu      sync.RWMutex
	service *websearch.Service
	logger  *slog.Logger
}

var (
	_ domain.Plugin         = (*WebSearchPlugin)(nil)
	_ domain.SettingsPlugin = (*WebSearchPlugin)(nil)
)

// NewWebSearchPlugin creates the plugin; the service is built in Init.
func NewWebSearchPlugin(opts WebSearchOptions) *WebSearchPlugin {
	return &WebSearchPlugin{opts: opts}
}

// Manifest implements domain.Plugin.
func (p *WebSearchPlugin) Manifest() domain.PluginManifest {
	return domain.PluginManifest{
		Name:        WebSearchName,
		Version:     "1.0.0",
		Description: "Answers questions from live web results with citations.",
		Author:      "websearch",
		Types:       []domain.PluginType{domain.PluginTypeTool},
		Permissions: []string{"network", "memory"},
	}
}

// SettingsSchema implements domain.SettingsPlugin.
func (p *WebSearchPlugin) SettingsSchema() json.RawMessage { return settingsSchema }

// Init implements domain.Plugin.
func (p *WebSearchPlugin) Init(_ context.Context, deps domain.PluginDeps) error {
	switch {
	case deps.Tools == nil:
		return missingDep("tool registry")
	case deps.LLM == nil:
		return missingDep("llm")
	case deps.Embedder == nil:
		return missingDep("embedder")
	case deps.Memory == nil:
		return missingDep("vector memory")
	case p.opts.Enumerator == nil || p.opts.Extractor == nil || p.opts.Splitter == nil:
		return missingDep("search pipeline")
	}

	settings, err := ParseSettings(deps.Config)
	if err != nil {
		return err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc := websearch.NewService(websearch.ServiceDeps{
		Engine:    websearch.NewEngine(p.opts.Enumerator, p.opts.Extractor, p.opts.Engine, logger),
		Memorizer: websearch.NewMemorizer(deps.Memory, deps.Embedder, deps.Hooks, deps.EventBus, p.opts.Memorize, logger),
		Answerer:  websearch.NewAnswerer(deps.LLM, deps.Embedder, deps.Memory, p.opts.Splitter, logger),
		Memory:    deps.Memory,
		Splitter:  p.opts.Splitter,
		EventBus:  deps.EventBus,
	}, settings, logger)

	limiter := tool.NewRateLimiter(p.opts.QueriesPerMinute, time.Minute)
	t, err := tool.WithSchemaValidation(tool.NewWebSearchTool(svc, deps.EventBus, limiter, logger))
	if err != nil {
		return err
	}
	if err := deps.Tools.Register(t); err != nil {
		return err
	}

	p.mu.Lock()
	p.service = svc
	p.logger = logger
	p.mu.Unlock()

	logger.Info("websearch ready", "max_results", settings.MaxResults, "language", settings.Language)
	return nil
}

func missingDep(what string) error {
	return domain.NewSubSystemError("plugin", "WebSearchPlugin.Init", domain.ErrInvalidInput, "missing "+what)
}

// Service returns the search service, or nil before Init.
func (p *WebSearchPlugin) Service() *websearch.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.service
}

// UpdateSettings validates raw and applies it to the running service.
func (p *WebSearchPlugin) UpdateSettings(raw json.RawMessage) error {
	svc := p.Service()
	if svc == nil {
		return domain.NewSubSystemError("plugin", "WebSearchPlugin.UpdateSettings", domain.ErrNotFound, "plugin not initialised")
	}
	settings, err := ParseSettings(raw)
	if err != nil {
		return err
	}
	return svc.UpdateSettings(settings)
}

// Close implements domain.Plugin.
func (p *WebSearchPlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.service != nil && p.logger != nil {
		p.logger.Debug("websearch closed")
	}
	p.service = nil
	return nil
}
