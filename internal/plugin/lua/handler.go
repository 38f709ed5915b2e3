// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package lua

import (
	"context"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/marshal"
	"github.com/hookhost/hookhost/internal/script"
)

// scriptEnv is one loaded script: its environment table, the state it
// runs in and what it has acquired.
type scriptEnv struct {
	rt     *Runtime
	handle *script.Handle
	L      *lua.LState
	own    bool
	env    *lua.LTable

	mu    sync.Mutex
	token hook.Token

	timerMu       sync.Mutex
	timers        map[*time.Timer]struct{}
	timersStopped bool
}

// call runs fn in the script's state and returns its results. The caller
// must hold the script's execution context.
func (s *scriptEnv) call(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	L := s.L
	prev := L.Context()
	L.SetContext(ctx)
	defer func() {
		if prev != nil {
			L.SetContext(prev)
		} else {
			L.RemoveContext()
		}
	}()

	top := L.GetTop()
	defer L.SetTop(top)

	L.Push(fn)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}
	out := make([]lua.LValue, L.GetTop()-top)
	for i := range out {
		out[i] = L.Get(top + 1 + i)
	}
	return out, nil
}

func (s *scriptEnv) swapToken(tok hook.Token) hook.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.token
	s.token = tok
	return prev
}

func (s *scriptEnv) clearToken() { s.swapToken(0) }

func (s *scriptEnv) registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != 0
}

// luaHandler adapts a Lua function to hook.Handler.
type luaHandler struct {
	s     *scriptEnv
	event string
	fn    *lua.LFunction
}

var _ hook.Handler = (*luaHandler)(nil)

// Invoke converts args to Lua values, calls the function and packs its
// results up to the first value that has no wire form.
func (h *luaHandler) Invoke(ctx context.Context, args *marshal.CallArgs) (*marshal.ReturnArgs, error) {
	if err := h.s.handle.BeginRun(); err != nil {
		return nil, err
	}
	defer h.s.handle.EndRun()

	in := make([]lua.LValue, args.Len())
	for i := range in {
		in[i] = toLua(args.Slot(i))
	}
	out, err := h.s.call(ctx, h.fn, in...)
	if err != nil {
		return nil, err
	}

	vals := make([]marshal.Value, 0, len(out))
	for _, lv := range out {
		v, ok := fromLua(lv)
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	return marshal.NewReturn(h.s.rt.alloc, vals...), nil
}

// cleanupFunc wraps a Lua cleanup function so it runs in the script's
// context.
func (s *scriptEnv) cleanupFunc(fn *lua.LFunction) hook.CleanupFunc {
	return func(ctx context.Context) error {
		return s.rt.ctxm.Enter(ctx, s.handle.ID(), func(ctx context.Context) error {
			_, err := s.call(ctx, fn)
			return err
		})
	}
}
