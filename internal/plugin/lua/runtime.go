// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package lua

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	lua "github.com/yuin/gopher-lua"

	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/marshal"
	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/internal/plugin/hostfunc"
	"github.com/hookhost/hookhost/internal/script"
)

// Runtime owns the Lua states of every loaded script. In shared mode all
// scripts run in one state, each in its own environment table; in isolated
// mode each script gets a state of its own.
type Runtime struct {
	factory  *StateFactory
	registry *hook.Registry
	ctxm     *execctx.Manager
	funcs    *hostfunc.Functions
	alloc    marshal.Allocator
	logger   *slog.Logger
	backoff  func() retry.Backoff

	mu      sync.Mutex
	shared  *lua.LState
	scripts map[script.ID]*scriptEnv
	closed  bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHostFunctions sets the hub functions installed in every script.
func WithHostFunctions(f *hostfunc.Functions) Option {
	return func(r *Runtime) {
		if f != nil {
			r.funcs = f
		}
	}
}

// WithAllocator sets the allocator backing handler return buffers.
func WithAllocator(a marshal.Allocator) Option {
	return func(r *Runtime) {
		if a != nil {
			r.alloc = a
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimerBackoff sets how a timer retries posting to a full queue.
func WithTimerBackoff(fn func() retry.Backoff) Option {
	return func(r *Runtime) {
		if fn != nil {
			r.backoff = fn
		}
	}
}

func defaultTimerBackoff() retry.Backoff {
	return retry.WithMaxRetries(4, retry.NewExponential(5*time.Millisecond))
}

// NewRuntime creates a runtime registering handlers in registry and running
// scripts under ctxm.
func NewRuntime(registry *hook.Registry, ctxm *execctx.Manager, opts ...Option) (*Runtime, error) {
	if registry == nil || ctxm == nil {
		return nil, oops.In("lua").Errorf("registry and execution context manager are required")
	}
	r := &Runtime{
		factory:  NewStateFactory(),
		registry: registry,
		ctxm:     ctxm,
		alloc:    marshal.NewPoolAllocator(),
		logger:   slog.Default(),
		backoff:  defaultTimerBackoff,
		scripts:  make(map[script.ID]*scriptEnv),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.funcs == nil {
		r.funcs = hostfunc.New(capability.NewEnforcer(), hostfunc.WithLogger(r.logger))
	}
	return r, nil
}

// Mode returns the execution mode scripts run in.
func (r *Runtime) Mode() execctx.Mode { return r.ctxm.Mode() }

// Allocator returns the allocator used for handler return buffers.
func (r *Runtime) Allocator() marshal.Allocator { return r.alloc }

// sequenced makes sure ctx carries a sequencing thread.
func (r *Runtime) sequenced(ctx context.Context) context.Context {
	if execctx.ThreadFrom(ctx) != nil {
		return ctx
	}
	return execctx.WithThread(ctx, r.ctxm.MainThread())
}

func (r *Runtime) stateFor(ctx context.Context) (*lua.LState, bool, error) {
	if r.ctxm.Mode() == execctx.ModeIsolated {
		L, err := r.factory.NewState(ctx)
		return L, true, err
	}
	if r.shared == nil {
		L, err := r.factory.NewState(ctx)
		if err != nil {
			return nil, false, err
		}
		r.shared = L
	}
	return r.shared, false, nil
}

// Load compiles code and runs its top level in a fresh environment for h,
// which must be in the loading state. Any failure leaves h unloaded with no
// registrations and returns a LOAD_ERROR.
func (r *Runtime) Load(ctx context.Context, h *script.Handle, code []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = h.Transition(script.StateUnloaded)
		return ErrLoad(h, ErrRuntimeClosed())
	}
	if _, dup := r.scripts[h.ID()]; dup {
		r.mu.Unlock()
		_ = h.Transition(script.StateUnloaded)
		return ErrLoad(h, oops.Errorf("script id %s already loaded", h.ID()))
	}
	L, own, err := r.stateFor(ctx)
	r.mu.Unlock()
	if err != nil {
		_ = h.Transition(script.StateUnloaded)
		return ErrLoad(h, err)
	}

	s := &scriptEnv{
		rt:     r,
		handle: h,
		L:      L,
		own:    own,
		timers: make(map[*time.Timer]struct{}),
	}
	s.env = NewEnv(L)
	s.installAPI()
	r.ctxm.NewToken(h.ID())

	ctx = r.sequenced(ctx)
	if err := r.runChunk(ctx, s, code); err != nil {
		r.discard(ctx, s)
		_ = h.Transition(script.StateUnloaded)
		return ErrLoad(h, err)
	}
	if err := h.Transition(script.StateReady); err != nil {
		r.discard(ctx, s)
		return ErrLoad(h, err)
	}

	r.mu.Lock()
	r.scripts[h.ID()] = s
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "script loaded",
		"script", h.Name(),
		"script_id", h.ID(),
		"mode", string(r.ctxm.Mode()))
	return nil
}

func (r *Runtime) runChunk(ctx context.Context, s *scriptEnv, code []byte) error {
	fn, err := s.L.Load(bytes.NewReader(code), "@"+s.handle.Name())
	if err != nil {
		return err
	}
	fn.Env = s.env
	return r.ctxm.Enter(ctx, s.handle.ID(), func(ctx context.Context) error {
		_, err := s.call(ctx, fn)
		return err
	})
}

// discard tears down everything a script acquired: registrations (running
// its cleanup), timers, its execution context and, in isolated mode, its
// state.
func (r *Runtime) discard(ctx context.Context, s *scriptEnv) {
	r.registry.UnregisterScript(ctx, s.handle.ID())
	s.clearToken()
	s.stopTimers()
	r.ctxm.Revoke(s.handle.ID())
	if s.own {
		s.L.Close()
	}
}

// Unload runs the script's cleanup, removes its registrations, revokes its
// execution context and releases its state.
func (r *Runtime) Unload(ctx context.Context, id script.ID) error {
	r.mu.Lock()
	s, ok := r.scripts[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownScript(id)
	}
	if err := s.handle.Transition(script.StateUnloading); err != nil {
		r.mu.Unlock()
		return oops.In("lua").With("operation", "unload").Wrap(err)
	}
	delete(r.scripts, id)
	r.mu.Unlock()

	ctx = r.sequenced(ctx)
	r.discard(ctx, s)
	if err := s.handle.Transition(script.StateUnloaded); err != nil {
		return oops.In("lua").With("operation", "unload").Wrap(err)
	}

	r.logger.InfoContext(ctx, "script unloaded", "script", s.handle.Name(), "script_id", id)
	return nil
}

// IsLoaded reports whether id is loaded.
func (r *Runtime) IsLoaded(id script.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scripts[id]
	return ok
}

// Handle returns the handle of a loaded script.
func (r *Runtime) Handle(id script.ID) (*script.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scripts[id]
	if !ok {
		return nil, false
	}
	return s.handle, true
}

// Scripts returns the loaded scripts ordered by ID.
func (r *Runtime) Scripts() []script.Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]script.Info, 0, len(r.scripts))
	for _, s := range r.scripts {
		out = append(out, s.handle.Info())
	}
	slices.SortFunc(out, func(a, b script.Info) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Close unloads every script, newest first, and closes the shared state.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ids := make([]script.ID, 0, len(r.scripts))
	for id := range r.scripts {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	slices.Reverse(ids)
	var errs []error
	for _, id := range ids {
		if err := r.Unload(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	if r.shared != nil {
		r.shared.Close()
		r.shared = nil
	}
	r.mu.Unlock()

	if len(errs) > 0 {
		return oops.In("lua").With("operation", "close").With("failures", len(errs)).Wrap(errors.Join(errs...))
	}
	return nil
}
