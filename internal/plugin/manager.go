// Package plugin loads in-process plugins and hands them the host's
// capabilities.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
)

// Compile-time check: Manager implements domain.PluginManager.
var _ domain.PluginManager = (*Manager)(nil)

// initTimeout bounds a single plugin's Init.
const initTimeout = 10 * time.Second

// Manager manages the lifecycle of in-process plugins.
type Manager struct {
	mu        sync.RWMutex
	plugins   map[string]domain.Plugin
	manifests map[string]domain.PluginManifest
	hooks     []domain.DocumentHook
	logger    *slog.Logger
	bus       domain.EventBus

	// host holds the capabilities shared with every plugin. Logger, EventBus,
	// Config and Hooks are filled per plugin at load time.
	host domain.PluginDeps
	cfg  config.PluginsConfig
}

// NewManager creates a plugin manager. host carries the tool registry, LLM,
// embedder and vector memory handed to plugins.
func NewManager(logger *slog.Logger, bus domain.EventBus, host domain.PluginDeps, cfg config.PluginsConfig) *Manager {
	return &Manager{
		plugins:   make(map[string]domain.Plugin),
		manifests: make(map[string]domain.PluginManifest),
		logger:    logger,
		bus:       bus,
		host:      host,
		cfg:       cfg,
	}
}

// Load validates, initialises and registers a plugin.
func (m *Manager) Load(p domain.Plugin) error {
	manifest := p.Manifest()
	if manifest.Name == "" {
		return domain.NewSubSystemError("plugin", "Manager.Load", domain.ErrInvalidInput, "manifest has no name")
	}

	if err := ValidatePermissions(manifest, m.cfg.AllowPermissions, m.cfg.DenyPermissions); err != nil {
		return err
	}

	// Reject duplicates before the comparatively expensive Init.
	m.mu.RLock()
	_, exists := m.plugins[manifest.Name]
	m.mu.RUnlock()
	if exists {
		return domain.NewSubSystemError("plugin", "Manager.Load", domain.ErrDuplicate, manifest.Name)
	}

	settings, err := m.cfg.SettingsFor(manifest.Name)
	if err != nil {
		return domain.NewSubSystemError("plugin", "Manager.Load", domain.ErrSettingsInvalid, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	deps := m.host
	deps.Logger = m.logger.With("plugin", manifest.Name)
	deps.EventBus = m.bus
	deps.Config = settings
	deps.Hooks = m.GetHooks()

	if err := p.Init(ctx, deps); err != nil {
		return fmt.Errorf("init plugin %q: %w", manifest.Name, err)
	}

	m.mu.Lock()
	// Double-check after Init: another Load may have won the race.
	if _, exists := m.plugins[manifest.Name]; exists {
		m.mu.Unlock()
		_ = p.Close()
		return domain.NewSubSystemError("plugin", "Manager.Load", domain.ErrDuplicate, manifest.Name)
	}

	m.plugins[manifest.Name] = p
	m.manifests[manifest.Name] = manifest

	if hook, ok := p.(domain.DocumentHook); ok {
		m.hooks = append(m.hooks, hook)
	}
	m.mu.Unlock()

	m.logger.Info("plugin loaded", "name", manifest.Name, "version", manifest.Version)
	m.publishEvent(domain.EventPluginLoaded, manifest.Name)
	return nil
}

// Unload calls Close on a plugin and removes it.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()

	p, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return domain.NewSubSystemError("plugin", "Manager.Unload", domain.ErrNotFound, name)
	}

	if err := p.Close(); err != nil {
		m.logger.Warn("plugin close error", "name", name, "error", err)
	}

	delete(m.plugins, name)
	delete(m.manifests, name)
	m.rebuildHooksLocked()
	m.mu.Unlock()

	m.logger.Info("plugin unloaded", "name", name)
	m.publishEvent(domain.EventPluginUnloaded, name)
	return nil
}

func (m *Manager) rebuildHooksLocked() {
	m.hooks = m.hooks[:0]
	for _, pp := range m.plugins {
		if hook, ok := pp.(domain.DocumentHook); ok {
			m.hooks = append(m.hooks, hook)
		}
	}
}

// Get returns a loaded plugin by name.
func (m *Manager) Get(name string) (domain.Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	if !ok {
		return nil, domain.NewSubSystemError("plugin", "Manager.Get", domain.ErrNotFound, name)
	}
	return p, nil
}

// publishEvent publishes a plugin lifecycle event if the bus is available.
func (m *Manager) publishEvent(eventType domain.EventType, pluginName string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(context.Background(), domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   mustJSON(map[string]string{"plugin": pluginName}),
	})
}

// mustJSON marshals v to json.RawMessage, panicking on error (programmer error).
func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("plugin: marshal event payload: %v", err))
	}
	return b
}

// List returns all loaded plugin manifests sorted by name.
func (m *Manager) List() []domain.PluginManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.PluginManifest, 0, len(m.manifests))
	for _, manifest := range m.manifests {
		result = append(result, manifest)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// GetHooks returns all plugins that implement DocumentHook.
func (m *Manager) GetHooks() []domain.DocumentHook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.DocumentHook, len(m.hooks))
	copy(result, m.hooks)
	return result
}

// Shutdown closes all loaded plugins.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.plugins {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Close(); err != nil {
			m.logger.Warn("plugin close error during shutdown", "name", name, "error", err)
		}
		delete(m.plugins, name)
		delete(m.manifests, name)
	}
	m.hooks = m.hooks[:0]
	return nil
}
