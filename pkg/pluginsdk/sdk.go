// Package pluginsdk provides types and helpers for websearch plugin authors.
//
// It re-exports internal/domain via type aliases, so it is only usable by
// plugins that live inside this module.
package pluginsdk

import (
	"context"

	"websearch/internal/domain"
)

// Re-exported domain types for plugin developers.
type (
	Plugin         = domain.Plugin
	SettingsPlugin = domain.SettingsPlugin
	PluginManifest = domain.PluginManifest
	PluginDeps     = domain.PluginDeps
	PluginType     = domain.PluginType
	DocumentHook   = domain.DocumentHook
	Document       = domain.Document
	Point          = domain.Point
	Tool           = domain.Tool
	ToolSchema     = domain.ToolSchema
	ToolResult     = domain.ToolResult
)

// Re-exported plugin type constants.
const (
	TypeTool   = domain.PluginTypeTool
	TypeMemory = domain.PluginTypeMemory
	TypeHook   = domain.PluginTypeHook
)

// BasePlugin provides default no-op implementations for the Plugin interface.
// Embed this in your plugin struct to only override the methods you need.
type BasePlugin struct {
	manifest PluginManifest
}

// NewBasePlugin creates a BasePlugin with the given manifest.
func NewBasePlugin(m PluginManifest) BasePlugin {
	return BasePlugin{manifest: m}
}

func (b BasePlugin) Manifest() PluginManifest                   { return b.manifest }
func (b BasePlugin) Init(_ context.Context, _ PluginDeps) error { return nil }
func (b BasePlugin) Close() error                               { return nil }

// BaseDocumentHook provides pass-through implementations for DocumentHook.
// Embed this in your plugin struct to only override the stages you need.
type BaseDocumentHook struct{}

func (BaseDocumentHook) BeforeStoreDocuments(_ context.Context, docs []Document) []Document {
	return docs
}
func (BaseDocumentHook) BeforeInsertPoint(_ context.Context, doc Document) Document { return doc }
func (BaseDocumentHook) AfterStoredDocuments(context.Context, string, []Point)      {}

var (
	_ Plugin       = BasePlugin{}
	_ DocumentHook = BaseDocumentHook{}
)
