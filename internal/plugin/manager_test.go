package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/internal/domain"
	"websearch/internal/infra/config"
	"websearch/pkg/pluginsdk"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type testPlugin struct {
	manifest domain.PluginManifest
	initErr  error
	closeErr error
	inited   bool
	closed   bool
	deps     domain.PluginDeps
}

func (p *testPlugin) Manifest() domain.PluginManifest { return p.manifest }
func (p *testPlugin) Init(_ context.Context, deps domain.PluginDeps) error {
	p.inited = true
	p.deps = deps
	return p.initErr
}
func (p *testPlugin) Close() error {
	p.closed = true
	return p.closeErr
}

// testHookPlugin implements both Plugin and DocumentHook.
type testHookPlugin struct {
	testPlugin
	pluginsdk.BaseDocumentHook
}

type mockEventBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *mockEventBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *mockEventBus) Subscribe(_ domain.EventType, _ domain.EventHandler) func() { return func() {} }
func (b *mockEventBus) SubscribeAll(_ domain.EventHandler) func()                  { return func() {} }
func (b *mockEventBus) Close()                                                     {}

func (b *mockEventBus) hasEvent(t domain.EventType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

type nopRegistrar struct{ tools []domain.Tool }

func (r *nopRegistrar) Register(t domain.Tool) error {
	r.tools = append(r.tools, t)
	return nil
}

func newTestManager(cfg config.PluginsConfig) *Manager {
	return NewManager(slog.Default(), nil, domain.PluginDeps{}, cfg)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestManagerLoad(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p := &testPlugin{manifest: domain.PluginManifest{Name: "test", Version: "1.0"}}

	require.NoError(t, mgr.Load(p))
	assert.True(t, p.inited, "expected Init to be called")
	assert.Len(t, mgr.List(), 1)

	got, err := mgr.Get("test")
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestManagerLoadRejectsUnnamed(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	err := mgr.Load(&testPlugin{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestManagerUnload(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p := &testPlugin{manifest: domain.PluginManifest{Name: "test", Version: "1.0"}}

	require.NoError(t, mgr.Load(p))
	require.NoError(t, mgr.Unload("test"))
	assert.True(t, p.closed, "expected Close to be called")
	assert.Empty(t, mgr.List())
}

func TestManagerUnloadNotFound(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	err := mgr.Unload("nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodePluginNotFound, domain.ErrorCodeOf(err))

	_, err = mgr.Get("nonexistent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManagerPermissions(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{
		AllowPermissions: []string{"memory"},
		DenyPermissions:  []string{"exec"},
	})
	p := &testPlugin{manifest: domain.PluginManifest{Name: "bad", Permissions: []string{"exec"}}}

	err := mgr.Load(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.False(t, p.inited, "Init should not be called for denied plugin")
}

func TestManagerLoadInitError(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p := &testPlugin{
		manifest: domain.PluginManifest{Name: "fail"},
		initErr:  errors.New("init boom"),
	}

	err := mgr.Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init boom")
	assert.Empty(t, mgr.List(), "failed plugin should not be listed")
}

func TestManagerLoadDuplicateName(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p1 := &testPlugin{manifest: domain.PluginManifest{Name: "dup", Version: "1.0"}}
	p2 := &testPlugin{manifest: domain.PluginManifest{Name: "dup", Version: "2.0"}}

	require.NoError(t, mgr.Load(p1))

	err := mgr.Load(p2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, domain.CodePluginDuplicate, domain.ErrorCodeOf(err))
	assert.False(t, p2.inited, "second plugin Init should not be called")
	assert.Len(t, mgr.List(), 1)
}

func TestManagerLoadConcurrentSafe(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = mgr.Load(&testPlugin{
				manifest: domain.PluginManifest{Name: fmt.Sprintf("plugin-%d", idx), Version: "1.0"},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d failed", i)
	}
	assert.Len(t, mgr.List(), n)
}

func TestManagerUnloadCloseError(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p := &testPlugin{
		manifest: domain.PluginManifest{Name: "closefail", Version: "1.0"},
		closeErr: errors.New("close boom"),
	}

	require.NoError(t, mgr.Load(p))
	assert.NoError(t, mgr.Unload("closefail"))
	assert.True(t, p.closed)
	assert.Empty(t, mgr.List())
}

func TestManagerListSortedCopy(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, mgr.Load(&testPlugin{manifest: domain.PluginManifest{Name: name}}))
	}

	list := mgr.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[2].Name)

	_ = append(list, domain.PluginManifest{Name: "injected"})
	assert.Len(t, mgr.List(), 3)
}

func TestManagerShutdown(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p := &testHookPlugin{testPlugin: testPlugin{manifest: domain.PluginManifest{Name: "a"}}}
	require.NoError(t, mgr.Load(p))

	require.NoError(t, mgr.Shutdown(context.Background()))
	assert.True(t, p.closed)
	assert.Empty(t, mgr.List())
	assert.Empty(t, mgr.GetHooks())
}

// ---------------------------------------------------------------------------
// Dependencies handed to plugins
// ---------------------------------------------------------------------------

func TestManagerPassesHostDepsAndSettings(t *testing.T) {
	reg := &nopRegistrar{}
	bus := &mockEventBus{}
	mgr := NewManager(slog.Default(), bus, domain.PluginDeps{Tools: reg}, config.PluginsConfig{
		Settings: map[string]map[string]any{"websearch": {"search_max_results": 5}},
	})
	p := &testPlugin{manifest: domain.PluginManifest{Name: "websearch"}}

	require.NoError(t, mgr.Load(p))
	assert.Same(t, reg, p.deps.Tools)
	assert.NotNil(t, p.deps.Logger)
	assert.Equal(t, domain.EventBus(bus), p.deps.EventBus)

	var s map[string]int
	require.NoError(t, json.Unmarshal(p.deps.Config, &s))
	assert.Equal(t, 5, s["search_max_results"])
}

func TestManagerNoSettingsGivesNilConfig(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	p := &testPlugin{manifest: domain.PluginManifest{Name: "bare"}}
	require.NoError(t, mgr.Load(p))
	assert.Nil(t, p.deps.Config)
}

func TestManagerHooksReachLaterPlugins(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	hp := &testHookPlugin{testPlugin: testPlugin{manifest: domain.PluginManifest{Name: "hooky"}}}
	require.NoError(t, mgr.Load(hp))

	p := &testPlugin{manifest: domain.PluginManifest{Name: "consumer"}}
	require.NoError(t, mgr.Load(p))
	require.Len(t, p.deps.Hooks, 1)
	assert.Equal(t, domain.DocumentHook(hp), p.deps.Hooks[0])
}

func TestManagerHooks(t *testing.T) {
	mgr := newTestManager(config.PluginsConfig{})
	for i := range 3 {
		require.NoError(t, mgr.Load(&testHookPlugin{testPlugin: testPlugin{
			manifest: domain.PluginManifest{Name: fmt.Sprintf("hook-%d", i)},
		}}))
	}
	require.NoError(t, mgr.Load(&testPlugin{manifest: domain.PluginManifest{Name: "plain"}}))
	assert.Len(t, mgr.GetHooks(), 3)

	require.NoError(t, mgr.Unload("hook-1"))
	hooks := mgr.GetHooks()
	assert.Len(t, hooks, 2)

	_ = append(hooks, nil)
	assert.Len(t, mgr.GetHooks(), 2)
}

func TestManagerPublishesLifecycleEvents(t *testing.T) {
	bus := &mockEventBus{}
	mgr := NewManager(slog.Default(), bus, domain.PluginDeps{}, config.PluginsConfig{})
	p := &testPlugin{manifest: domain.PluginManifest{Name: "evented", Version: "1.0"}}

	require.NoError(t, mgr.Load(p))
	assert.True(t, bus.hasEvent(domain.EventPluginLoaded))

	require.NoError(t, mgr.Unload("evented"))
	assert.True(t, bus.hasEvent(domain.EventPluginUnloaded))
}
