package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"websearch/internal/adapter/embedding"
	"websearch/internal/adapter/extract"
	"websearch/internal/adapter/llm"
	"websearch/internal/adapter/memory/vector"
	"websearch/internal/adapter/search"
	"websearch/internal/adapter/text"
	"websearch/internal/adapter/tool"
	"websearch/internal/domain"
	"websearch/internal/infra/config"
	"websearch/internal/infra/logger"
	"websearch/internal/infra/middleware"
	"websearch/internal/plugin"
	"websearch/internal/security"
	"websearch/internal/usecase/eventbus"
	"websearch/internal/usecase/websearch"
)

// app is the wired host: tool registry, plugin manager and the websearch
// plugin with its adapters.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *eventbus.Bus
	registry  *tool.Registry
	plugins   *plugin.Manager
	websearch *plugin.WebSearchPlugin
	memory    *vector.Memory
}

// newApp builds every adapter from cfg and loads the websearch plugin.
// ctx bounds background workers such as the per-host rate limiter sweep.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	// 1. Network guard
	guard := security.NewURLGuard(security.WithAllowedHosts(allowedHosts(cfg)...))

	// 2. Search pipeline
	searchClient := &http.Client{
		Timeout:       cfg.Search.Timeout,
		Transport:     middleware.BrowserHeaders(cfg.Search.UserAgent, guard.Transport()),
		CheckRedirect: guard.CheckRedirect,
	}
	enum, err := search.New(cfg.Search, searchClient, logger.WithComponent(log, "search"))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	ext := extract.New(ctx, cfg.Extract, guard, logger.WithComponent(log, "extract"))

	// 3. Embeddings & vector memory
	embedder, err := embedding.New(cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if err := os.MkdirAll(cfg.Memory.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	mem, err := vector.New(filepath.Join(cfg.Memory.DataDir, "vectors.db"), logger.WithComponent(log, "memory"), vector.Options{
		EmbedderName:        embedder.Name(),
		Dimensions:          embedder.Dimensions(),
		MaxVectorCandidates: cfg.Memory.MaxVectorCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	// 4. LLM
	chat := llm.New(cfg.LLM, logger.WithComponent(log, "llm"))

	// 5. Host
	bus := eventbus.New(log)
	registry := tool.NewRegistry(log)
	mgr := plugin.NewManager(log, bus, domain.PluginDeps{
		Tools:    registry,
		LLM:      chat,
		Embedder: embedder,
		Memory:   mem,
	}, cfg.Plugins)

	// 6. Plugin
	ws := plugin.NewWebSearchPlugin(plugin.WebSearchOptions{
		Enumerator: enum,
		Extractor:  ext,
		Splitter:   text.New(cfg.Splitter, log),
		Engine: websearch.EngineOptions{
			EnumerateCount: cfg.Search.EnumerateCount,
			Concurrency:    cfg.Extract.Concurrency,
		},
		Memorize: websearch.MemorizerOptions{
			NotifyInterval: cfg.Memorize.NotifyInterval,
			InsertInterval: cfg.Memorize.InsertInterval,
		},
		QueriesPerMinute: cfg.Search.QueriesPerMinute,
	})
	if err := mgr.Load(ws); err != nil {
		bus.Close()
		mem.Close()
		return nil, fmt.Errorf("plugin: %w", err)
	}

	return &app{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		registry:  registry,
		plugins:   mgr,
		websearch: ws,
		memory:    mem,
	}, nil
}

// allowedHosts exempts a self-hosted SearXNG instance from the SSRF check.
func allowedHosts(cfg *config.Config) []string {
	if cfg.Search.Backend != "searxng" {
		return nil
	}
	u, err := url.Parse(cfg.Search.SearXNGURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}

// Close unloads plugins, drains the event bus and closes the database.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.plugins.Shutdown(ctx)
	a.bus.Close()
	return errors.Join(err, a.memory.Close())
}

// setup loads config and builds the logger for a command. The returned
// closer flushes the log output.
func setup(f cliFlags) (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(configPath(f))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	log, closer, err := logger.NewStdio(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, closer, nil
}
