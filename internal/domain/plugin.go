package domain

import (
	"context"
	"encoding/json"
	"log/slog"
)

// PluginType classifies what a plugin provides.
type PluginType string

const (
	PluginTypeTool   PluginType = "tool"
	PluginTypeMemory PluginType = "memory"
	PluginTypeHook   PluginType = "hook"
)

// PluginManifest describes a plugin's identity and capabilities.
type PluginManifest struct {
	Name        string       `json:"name"        yaml:"name"`
	Version     string       `json:"version"     yaml:"version"`
	Description string       `json:"description" yaml:"description"`
	Author      string       `json:"author"      yaml:"author"`
	Types       []PluginType `json:"types"       yaml:"types"`
	Permissions []string     `json:"permissions" yaml:"permissions"`
}

// Plugin is the interface every in-process plugin must implement.
type Plugin interface {
	Manifest() PluginManifest
	Init(ctx context.Context, deps PluginDeps) error
	Close() error
}

// SettingsPlugin is implemented by plugins that expose user-facing settings.
type SettingsPlugin interface {
	Plugin
	// SettingsSchema returns the JSON Schema of the plugin settings.
	SettingsSchema() json.RawMessage
}

// PluginDeps are dependencies injected into a plugin during Init.
// Any field except Logger may be nil when the host does not provide it.
type PluginDeps struct {
	Logger   *slog.Logger
	EventBus EventBus
	Config   json.RawMessage
	Tools    ToolRegistrar
	LLM      LLMProvider
	Embedder EmbeddingProvider
	Memory   VectorMemory
	Hooks    []DocumentHook
}

// PluginManager handles the lifecycle of plugins.
type PluginManager interface {
	Load(plugin Plugin) error
	Unload(name string) error
	List() []PluginManifest
}
