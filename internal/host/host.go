// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package host assembles the script host and drives it from a single
// sequencing goroutine.
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/admin"
	"github.com/hookhost/hookhost/internal/config"
	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/marshal"
	"github.com/hookhost/hookhost/internal/observability"
	"github.com/hookhost/hookhost/internal/plugin"
	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/internal/plugin/hostfunc"
	pluginlua "github.com/hookhost/hookhost/internal/plugin/lua"
	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Host owns every component. Its methods are safe to call from several
// goroutines; they are serialized onto one sequencing thread.
type Host struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *hook.Registry
	ctxm     *execctx.Manager
	disp     *hook.Dispatcher
	scripts  *plugin.Manager
	admin    *admin.Interface
	metrics  *observability.Metrics

	seq    sync.Mutex
	thread *execctx.Thread
}

// Option configures a Host.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	config    hostfunc.ConfigStore
	messenger hostfunc.Messenger
	observer  hook.FaultObserver
	metrics   *observability.Metrics
}

// WithLogger sets the logger every component logs through.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfigStore backs hub.get_config and hub.set_config.
func WithConfigStore(store hostfunc.ConfigStore) Option {
	return func(o *options) { o.config = store }
}

// WithMessenger backs hub.send.
func WithMessenger(m hostfunc.Messenger) Option {
	return func(o *options) { o.messenger = m }
}

// WithFaultObserver receives every contained handler fault.
func WithFaultObserver(fn hook.FaultObserver) Option {
	return func(o *options) { o.observer = fn }
}

// WithMetrics records host metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds a host from cfg.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config == nil {
		o.config = hostfunc.NewMemoryConfig(nil)
	}

	mode, err := execctx.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	enforcer, err := capability.FromMap(cfg.Capabilities)
	if err != nil {
		return nil, err
	}
	ctxm, err := execctx.New(mode,
		execctx.WithQueueSize(cfg.QueueSize),
		execctx.WithWorkBudget(cfg.HandlerBudget),
		execctx.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	registry := hook.NewRegistry()
	disp, err := hook.NewDispatcher(registry,
		hook.WithInvoker(ctxm),
		hook.WithHandlerBudget(cfg.HandlerBudget),
		hook.WithFaultObserver(o.observer),
		hook.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	funcOpts := []hostfunc.Option{hostfunc.WithConfigStore(o.config), hostfunc.WithLogger(o.logger)}
	if o.messenger != nil {
		funcOpts = append(funcOpts, hostfunc.WithMessenger(o.messenger))
	}
	rt, err := pluginlua.NewRuntime(registry, ctxm,
		pluginlua.WithHostFunctions(hostfunc.New(enforcer, funcOpts...)),
		pluginlua.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	return &Host{
		cfg:      cfg,
		logger:   o.logger,
		registry: registry,
		ctxm:     ctxm,
		disp:     disp,
		scripts:  plugin.NewManager(rt, plugin.WithEnforcer(enforcer), plugin.WithManagerLogger(o.logger)),
		admin: admin.New(registry, disp,
			admin.WithNamespace(cfg.AdminNamespace),
			admin.WithOperatorClass(cfg.OperatorClass),
			admin.WithLogger(o.logger)),
		metrics:  o.metrics,
		thread:   ctxm.MainThread(),
	}, nil
}

// Registry returns the hook registry.
func (h *Host) Registry() *hook.Registry { return h.registry }

// Dispatcher returns the dispatcher.
func (h *Host) Dispatcher() *hook.Dispatcher { return h.disp }

// Scripts returns the script manager.
func (h *Host) Scripts() *plugin.Manager { return h.scripts }

// Admin returns the admin command interface.
func (h *Host) Admin() *admin.Interface { return h.admin }

// Contexts returns the execution context manager.
func (h *Host) Contexts() *execctx.Manager { return h.ctxm }

func (h *Host) sequenced(ctx context.Context, fn func(ctx context.Context) error) error {
	h.seq.Lock()
	defer h.seq.Unlock()
	return fn(execctx.WithThread(ctx, h.thread))
}

// Start autoloads scripts when configured.
func (h *Host) Start(ctx context.Context) error {
	if !h.cfg.Autoload || h.cfg.ScriptsDir == "" {
		return nil
	}
	return h.sequenced(ctx, func(ctx context.Context) error {
		n, err := h.scripts.LoadDir(ctx, h.cfg.ScriptsDir, h.cfg.AutoloadPattern)
		h.updateLoaded()
		if err != nil {
			return err
		}
		h.logger.InfoContext(ctx, "autoloaded scripts", "dir", h.cfg.ScriptsDir, "count", n)
		return nil
	})
}

func (h *Host) updateLoaded() {
	if h.metrics != nil {
		h.metrics.ScriptsLoaded.Set(float64(len(h.scripts.Scripts())))
	}
}

// Load loads one script on the sequencing thread.
func (h *Host) Load(ctx context.Context, path string) (id script.ID, err error) {
	err = h.sequenced(ctx, func(ctx context.Context) error {
		id, err = h.scripts.Load(ctx, path)
		return err
	})
	h.updateLoaded()
	return id, err
}

// Unload unloads a script on the sequencing thread.
func (h *Host) Unload(ctx context.Context, id script.ID) error {
	err := h.sequenced(ctx, func(ctx context.Context) error {
		return h.scripts.Unload(ctx, id)
	})
	h.updateLoaded()
	return err
}

// Fire packs values and dispatches name on the sequencing thread. The
// call buffer is released once the dispatch returns.
func (h *Host) Fire(ctx context.Context, name string, values ...marshal.Value) (res hook.Result, err error) {
	err = h.sequenced(ctx, func(ctx context.Context) error {
		res, err = h.fire(ctx, name, values...)
		return err
	})
	return res, err
}

func (h *Host) fire(ctx context.Context, name string, values ...marshal.Value) (hook.Result, error) {
	args := marshal.Pack(values...)
	defer args.Release()
	return h.disp.Dispatch(ctx, name, args)
}

// HubCommand offers a hub command to scripts first. When no script stops
// it, the admin interface handles commands addressed to its namespace.
// It reports whether the command was consumed.
func (h *Host) HubCommand(ctx context.Context, session admin.Session, command string, inPM bool, prefix string) (handled bool, reply admin.Reply) {
	_ = h.sequenced(ctx, func(ctx context.Context) error {
		res, err := h.fire(ctx, event.OnHubCommand,
			marshal.Str(session.Nick()),
			marshal.Str(command),
			marshal.Int(int64(session.Class())),
			marshal.Bool(inPM),
			marshal.Str(prefix))
		if err != nil {
			errutil.LogError(h.logger, "hub command dispatch failed",
				oops.In("host").With("nick", session.Nick()).Wrap(err))
		} else if res.Stopped {
			handled = true
			reply = admin.Reply{Handled: true}
			h.recordCommand("script")
			return nil
		}

		reply = h.admin.Execute(session, prefix+command)
		handled = reply.Handled
		if handled {
			h.recordCommand("admin")
		}
		return nil
	})
	return handled, reply
}

func (h *Host) recordCommand(outcome string) {
	if h.metrics != nil {
		h.metrics.AdminCommands.WithLabelValues(outcome).Inc()
	}
}

// Tick drains background work, then fires OnTimer with msec.
func (h *Host) Tick(ctx context.Context, msec int64) (res hook.Result, err error) {
	err = h.sequenced(ctx, func(ctx context.Context) error {
		h.ctxm.Drain(ctx, h.thread)
		res, err = h.fire(ctx, event.OnTimer, marshal.Int(msec))
		return err
	})
	return res, err
}

// Run ticks every interval until ctx is done.
func (h *Host) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = h.cfg.TickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := h.Tick(ctx, now.Sub(last).Milliseconds()); err != nil {
				errutil.LogError(h.logger, "tick failed", err)
			}
			last = now
		}
	}
}

// Close unloads every script and stops accepting background work.
func (h *Host) Close(ctx context.Context) error {
	err := h.sequenced(ctx, func(ctx context.Context) error {
		return h.scripts.Close(ctx)
	})
	h.ctxm.Close()
	h.updateLoaded()
	return err
}
