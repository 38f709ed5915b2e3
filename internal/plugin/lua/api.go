// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package lua

import (
	"context"
	"math"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	lua "github.com/yuin/gopher-lua"

	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/pkg/errutil"
)

func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// installAPI puts the hub table into the script's environment.
func (s *scriptEnv) installAPI() {
	L := s.L
	name := s.handle.Name()
	mod := L.NewTable()

	s.rt.funcs.Install(L, mod, name, s.handle.ID())
	L.SetField(mod, "register", L.NewFunction(s.register))
	L.SetField(mod, "unregister", L.NewFunction(s.unregister))
	L.SetField(mod, "after", L.NewFunction(s.rt.funcs.Guard(name, capability.HubTimer, s.after)))
	L.SetField(mod, "script_id", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(s.handle.ID()))
		return 1
	}))
	L.SetField(mod, "mode", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(s.rt.ctxm.Mode()))
		return 1
	}))

	s.env.RawSetString("hub", mod)
}

// register implements hub.register{name=, priority=, hooks={}, cleanup=}.
// A script registers at most once.
func (s *scriptEnv) register(L *lua.LState) int {
	spec := L.CheckTable(1)
	if s.registered() {
		L.RaiseError("hub.register: script %s is already registered", s.handle.Name())
		return 0
	}

	hooks, ok := spec.RawGetString("hooks").(*lua.LTable)
	if !ok {
		L.RaiseError("hub.register: hooks table required")
		return 0
	}

	handlers := make(map[string]hook.Handler)
	var bad string
	hooks.ForEach(func(k, v lua.LValue) {
		key, kok := k.(lua.LString)
		fn, fok := v.(*lua.LFunction)
		if !kok || !fok {
			if bad == "" {
				bad = k.String()
			}
			return
		}
		if _, known := event.Lookup(string(key)); !known {
			s.rt.logger.Warn("hook for event outside the catalog",
				"script", s.handle.Name(),
				"event", string(key))
		}
		handlers[string(key)] = &luaHandler{s: s, event: string(key), fn: fn}
	})
	if bad != "" {
		L.RaiseError("hub.register: hook %s must be a function keyed by event name", bad)
		return 0
	}

	priority, ok := registerPriority(spec.RawGetString("priority"), s.handle.Priority())
	if !ok {
		L.RaiseError("hub.register: priority must be an integer")
		return 0
	}
	display := s.handle.Name()
	if n, ok := spec.RawGetString("name").(lua.LString); ok && n != "" {
		display = string(n)
	}
	var cleanup hook.CleanupFunc
	if fn, ok := spec.RawGetString("cleanup").(*lua.LFunction); ok {
		cleanup = s.cleanupFunc(fn)
	}

	tok, err := s.rt.registry.Register(hook.Registration{
		ScriptID:   s.handle.ID(),
		ScriptName: display,
		Priority:   priority,
		Hooks:      handlers,
		Cleanup:    cleanup,
	})
	if err != nil {
		L.RaiseError("hub.register: %s", err.Error())
		return 0
	}
	s.swapToken(tok)

	L.Push(lua.LNumber(s.handle.ID()))
	return 1
}

// unregister implements hub.unregister(). It runs the cleanup and reports
// whether a registration was removed.
func (s *scriptEnv) unregister(L *lua.LState) int {
	tok := s.swapToken(0)
	if tok == 0 {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(s.rt.registry.Unregister(callContext(L), tok)))
	return 1
}

// after implements hub.after(ms, fn). The callback is queued as background
// work when the timer fires and runs on the next drain.
func (s *scriptEnv) after(L *lua.LState) int {
	ms := L.CheckInt64(1)
	fn := L.CheckFunction(2)
	if ms < 0 {
		ms = 0
	}
	s.schedule(time.Duration(ms)*time.Millisecond, fn)
	return 0
}

func (s *scriptEnv) schedule(d time.Duration, fn *lua.LFunction) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timersStopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.timerMu.Lock()
		delete(s.timers, t)
		stopped := s.timersStopped
		s.timerMu.Unlock()
		if !stopped {
			s.post(fn)
		}
	})
	s.timers[t] = struct{}{}
}

func (s *scriptEnv) post(fn *lua.LFunction) {
	work := func(ctx context.Context) error {
		if err := s.handle.BeginRun(); err != nil {
			return err
		}
		defer s.handle.EndRun()
		_, err := s.call(ctx, fn)
		return err
	}

	err := retry.Do(context.Background(), s.rt.backoff(), func(context.Context) error {
		err := s.rt.ctxm.Post(s.handle.ID(), work)
		if errutil.HasCode(err) && errutil.Code(err) == execctx.CodeQueueFull {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		errutil.LogWarn(s.rt.logger, "timer dropped",
			oops.In("lua").With("script", s.handle.Name()).With("script_id", s.handle.ID()).Wrap(err))
	}
}

// stopTimers cancels pending timers and refuses new ones.
func (s *scriptEnv) stopTimers() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.timersStopped = true
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
}

// registerPriority reads the optional priority field. Any integer is
// accepted, zero and negatives included; nil selects fallback.
func registerPriority(v lua.LValue, fallback int) (int, bool) {
	switch p := v.(type) {
	case *lua.LNilType:
		return fallback, true
	case lua.LNumber:
		n := float64(p)
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
