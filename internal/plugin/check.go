// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package plugin

import (
	"context"
	"log/slog"

	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/internal/plugin/hostfunc"
	pluginlua "github.com/hookhost/hookhost/internal/plugin/lua"
)

// Report describes a script loaded by Check.
type Report struct {
	Name     string
	Manifest *Manifest
	// Events lists the hooked events; Unknown those outside the catalog.
	Events  []string
	Unknown []string
}

// Check loads the script at path into a throwaway runtime with every
// capability granted and reports what it registered.
func Check(ctx context.Context, path string, mode execctx.Mode, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctxm, err := execctx.New(mode, execctx.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer ctxm.Close()

	enforcer, err := capability.FromMap(map[string][]string{capability.DefaultKey: {"**"}})
	if err != nil {
		return nil, err
	}
	registry := hook.NewRegistry()
	rt, err := pluginlua.NewRuntime(registry, ctxm,
		pluginlua.WithLogger(logger),
		pluginlua.WithHostFunctions(hostfunc.New(enforcer,
			hostfunc.WithConfigStore(hostfunc.NewMemoryConfig(nil)),
			hostfunc.WithLogger(logger))))
	if err != nil {
		return nil, err
	}
	mgr := NewManager(rt, WithManagerLogger(logger))
	defer func() { _ = mgr.Close(ctx) }()

	if _, err := mgr.Load(ctx, path); err != nil {
		return nil, err
	}

	manifest, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	report := &Report{Name: ScriptName(path, manifest), Manifest: manifest}
	for _, e := range registry.Entries() {
		report.Events = append(report.Events, e.Event)
		if _, ok := event.Lookup(e.Event); !ok {
			report.Unknown = append(report.Unknown, e.Event)
		}
	}
	return report, nil
}
