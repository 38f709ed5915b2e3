// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/plugin/capability"
	pluginlua "github.com/hookhost/hookhost/internal/plugin/lua"
	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// DefaultPattern selects the files LoadDir loads.
const DefaultPattern = "*.lua"

// ScriptInfo describes a loaded script.
type ScriptInfo struct {
	script.Info
	Version      string
	Capabilities []string
}

type loaded struct {
	handle   *script.Handle
	manifest *Manifest
	// prevGrants are the script's own grants before its manifest narrowed
	// them; hadGrants reports whether it had any.
	prevGrants []string
	hadGrants  bool
}

// Manager loads scripts from disk into a Lua runtime.
type Manager struct {
	runtime  *pluginlua.Runtime
	enforcer *capability.Enforcer
	logger   *slog.Logger
	ids      script.IDSource

	mu     sync.RWMutex
	loaded map[script.ID]*loaded
	order  []script.ID
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithEnforcer sets the enforcer manifest capabilities are applied to.
func WithEnforcer(e *capability.Enforcer) ManagerOption {
	return func(m *Manager) {
		m.enforcer = e
	}
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager loading into rt.
func NewManager(rt *pluginlua.Runtime, opts ...ManagerOption) *Manager {
	m := &Manager{
		runtime: rt,
		logger:  slog.Default(),
		loaded:  make(map[script.ID]*loaded),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Runtime returns the runtime scripts are loaded into.
func (m *Manager) Runtime() *pluginlua.Runtime { return m.runtime }

// Load reads the script at path and its optional manifest and loads it.
// Every failure carries LOAD_ERROR.
func (m *Manager) Load(ctx context.Context, path string) (script.ID, error) {
	code, err := os.ReadFile(path) //nolint:gosec // operator-supplied script path
	if err != nil {
		return 0, ErrLoadFile(path, err)
	}
	manifest, err := ReadManifest(path)
	if err != nil {
		return 0, ErrLoadFile(path, err)
	}
	name := ScriptName(path, manifest)
	if id, ok := m.Lookup(name); ok {
		return 0, ErrLoadFile(path, ErrDuplicateScript(name, id))
	}

	rec := &loaded{manifest: manifest}
	if err := m.applyCapabilities(name, manifest, rec); err != nil {
		return 0, ErrLoadFile(path, err)
	}

	priority := script.DefaultPriority
	if manifest.Priority != 0 {
		priority = manifest.Priority
	}
	h := script.NewHandle(m.ids.Next(), name, path, priority)
	rec.handle = h
	if err := m.runtime.Load(ctx, h, code); err != nil {
		m.restoreCapabilities(name, manifest, rec)
		return 0, err
	}

	m.mu.Lock()
	m.loaded[h.ID()] = rec
	m.order = append(m.order, h.ID())
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "loaded script",
		"script", name,
		"script_id", h.ID(),
		"path", path,
		"version", manifest.Version)
	return h.ID(), nil
}

// applyCapabilities narrows a script's grants to what its manifest asks
// for. Requests beyond the configured grants are dropped with a warning.
func (m *Manager) applyCapabilities(name string, manifest *Manifest, rec *loaded) error {
	if m.enforcer == nil || len(manifest.Capabilities) == 0 {
		return nil
	}
	rec.prevGrants, rec.hadGrants = m.enforcer.Own(name)

	kept := make([]string, 0, len(manifest.Capabilities))
	for _, c := range manifest.Capabilities {
		if m.enforcer.Check(name, c) {
			kept = append(kept, c)
			continue
		}
		m.logger.Warn("manifest capability not granted", "script", name, "capability", c)
	}
	return m.enforcer.SetGrants(name, kept)
}

func (m *Manager) restoreCapabilities(name string, manifest *Manifest, rec *loaded) {
	if m.enforcer == nil || len(manifest.Capabilities) == 0 {
		return
	}
	if !rec.hadGrants {
		m.enforcer.RemoveGrants(name)
		return
	}
	if err := m.enforcer.SetGrants(name, rec.prevGrants); err != nil {
		errutil.LogError(m.logger, "failed to restore grants", err)
	}
}

// Unload unloads a script. Unknown IDs fail with UNKNOWN_SCRIPT.
func (m *Manager) Unload(ctx context.Context, id script.ID) error {
	m.mu.RLock()
	rec, ok := m.loaded[id]
	m.mu.RUnlock()
	if !ok {
		return pluginlua.ErrUnknownScript(id)
	}

	if err := m.runtime.Unload(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.loaded, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	m.mu.Unlock()

	m.restoreCapabilities(rec.handle.Name(), rec.manifest, rec)
	return nil
}

// IsLoaded reports whether id is loaded.
func (m *Manager) IsLoaded(id script.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.loaded[id]
	return ok
}

// Lookup finds a loaded script by name.
func (m *Manager) Lookup(name string) (script.ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if m.loaded[id].handle.Name() == name {
			return id, true
		}
	}
	return 0, false
}

// Scripts returns the loaded scripts in load order.
func (m *Manager) Scripts() []ScriptInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ScriptInfo, 0, len(m.order))
	for _, id := range m.order {
		rec := m.loaded[id]
		info := ScriptInfo{Info: rec.handle.Info(), Version: rec.manifest.Version}
		if m.enforcer != nil {
			info.Capabilities = m.enforcer.Grants(rec.handle.Name())
		}
		out = append(out, info)
	}
	return out
}

// LoadDir loads every file in dir whose name matches pattern, in name
// order. Failures are logged and skipped. A missing directory loads
// nothing.
func (m *Manager) LoadDir(ctx context.Context, dir, pattern string) (int, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, oops.In("plugin").Code(CodeInvalidPattern).With("pattern", pattern).Wrap(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, oops.In("plugin").With("dir", dir).Hint("failed to read scripts directory").Wrap(err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !g.Match(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, err := m.Load(ctx, path); err != nil {
			errutil.LogError(m.logger, "failed to load script", err)
			continue
		}
		count++
	}
	return count, nil
}

// Close unloads every script in reverse load order and closes the runtime.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	order := slices.Clone(m.order)
	m.mu.RUnlock()

	slices.Reverse(order)
	for _, id := range order {
		if err := m.Unload(ctx, id); err != nil {
			errutil.LogError(m.logger, "failed to unload script", err)
		}
	}
	return m.runtime.Close(ctx)
}
