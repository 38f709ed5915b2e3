// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package lua_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/execctx"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/marshal"
	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/internal/plugin/hostfunc"
	hostlua "github.com/hookhost/hookhost/internal/plugin/lua"
	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

type fixture struct {
	rt       *hostlua.Runtime
	registry *hook.Registry
	ctxm     *execctx.Manager
	disp     *hook.Dispatcher
	config   *hostfunc.MemoryConfig
	alloc    *marshal.PoolAllocator
	ids      script.IDSource
}

// syncBuffer is a log sink shared with timer goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf.Bytes(), []byte(s))
}

func newFixture(t *testing.T, mode execctx.Mode, opts ...hostlua.Option) *fixture {
	t.Helper()
	f := &fixture{
		registry: hook.NewRegistry(),
		config:   hostfunc.NewMemoryConfig(nil),
		alloc:    marshal.NewPoolAllocator(),
	}
	enforcer, err := capability.FromMap(map[string][]string{
		capability.DefaultKey: {capability.ConfigRead, capability.ConfigWrite, capability.HubTimer},
	})
	require.NoError(t, err)
	f.ctxm, err = execctx.New(mode, execctx.WithQueueSize(4))
	require.NoError(t, err)
	funcs := hostfunc.New(enforcer, hostfunc.WithConfigStore(f.config))
	opts = append([]hostlua.Option{hostlua.WithHostFunctions(funcs), hostlua.WithAllocator(f.alloc)}, opts...)
	f.rt, err = hostlua.NewRuntime(f.registry, f.ctxm, opts...)
	require.NoError(t, err)

	f.disp, err = hook.NewDispatcher(f.registry,
		hook.WithInvoker(f.ctxm),
		hook.WithHandlerBudget(100*time.Millisecond))
	require.NoError(t, err)

	t.Cleanup(func() { _ = f.rt.Close(context.Background()) })
	return f
}

func (f *fixture) ctx() context.Context {
	return execctx.WithThread(context.Background(), f.ctxm.MainThread())
}

func (f *fixture) handle(name string) *script.Handle {
	return script.NewHandle(f.ids.Next(), name, name+".lua", script.DefaultPriority)
}

func (f *fixture) load(t *testing.T, name, code string) *script.Handle {
	t.Helper()
	h := f.handle(name)
	require.NoError(t, f.rt.Load(f.ctx(), h, []byte(code)))
	return h
}

func (f *fixture) fire(t *testing.T, name string, values ...marshal.Value) hook.Result {
	t.Helper()
	args := marshal.Pack(values...)
	defer args.Release()
	res, err := f.disp.Dispatch(f.ctx(), name, args)
	require.NoError(t, err)
	return res
}

func configValue(t *testing.T, f *fixture, key string) string {
	t.Helper()
	v, _, err := f.config.Get(context.Background(), "test", key)
	require.NoError(t, err)
	return v
}

func TestNewRuntime_RequiresDependencies(t *testing.T) {
	_, err := hostlua.NewRuntime(nil, nil)
	require.Error(t, err)
}

func TestLoad_RegistersHandlers(t *testing.T) {
	for _, mode := range []execctx.Mode{execctx.ModeShared, execctx.ModeIsolated} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, mode)
			h := f.load(t, "greeter", `
				hub.register{
					priority = 20,
					hooks = {
						OnUserLogin = function(nick)
							hub.set_config("test", "last", nick)
						end,
					},
				}
			`)

			assert.Equal(t, script.StateReady, h.State())
			assert.True(t, f.rt.IsLoaded(h.ID()))
			require.Len(t, f.registry.Entries(), 1)
			assert.Equal(t, 20, f.registry.Entries()[0].Priority)

			res := f.fire(t, event.OnUserLogin, marshal.Str("alice"))
			assert.Equal(t, 1, res.Invoked)
			assert.Zero(t, res.Faults)
			assert.Equal(t, "alice", configValue(t, f, "last"))
		})
	}
}

func TestLoad_StopCodeEndsChain(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	f.load(t, "gate", `
		hub.register{priority = 10, hooks = {
			OnParsedMsgChat = function(nick, msg)
				if msg == "STOP" then return 0 end
				return 1
			end,
		}}
	`)
	f.load(t, "tail", `
		hub.register{priority = 50, hooks = {
			OnParsedMsgChat = function(nick, msg) hub.set_config("test", "tail", msg) end,
		}}
	`)

	res := f.fire(t, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("STOP"))
	assert.True(t, res.Stopped)
	assert.Equal(t, 1, res.Invoked)
	assert.Empty(t, configValue(t, f, "tail"))

	res = f.fire(t, event.OnParsedMsgChat, marshal.Str("bob"), marshal.Str("hello"))
	assert.False(t, res.Stopped)
	assert.Equal(t, 2, res.Invoked)
	assert.Equal(t, "hello", configValue(t, f, "tail"))
	assert.Zero(t, f.alloc.Outstanding())
}

func TestLoad_GlobalsAreIsolated(t *testing.T) {
	for _, mode := range []execctx.Mode{execctx.ModeShared, execctx.ModeIsolated} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, mode)
			f.load(t, "a", `
				counter = "a"
				hub.register{hooks = {
					OnUserLogin = function() hub.set_config("test", "a", counter) end,
				}}
			`)
			f.load(t, "b", `
				counter = "b"
				hub.register{hooks = {
					OnUserLogin = function() hub.set_config("test", "b", tostring(counter)) end,
				}}
			`)

			f.fire(t, event.OnUserLogin, marshal.Str("x"))
			assert.Equal(t, "a", configValue(t, f, "a"))
			assert.Equal(t, "b", configValue(t, f, "b"))
		})
	}
}

func TestLoad_ErrorLeavesNothingBehind(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"syntax", `hub.register{hooks = {`},
		{"runtime", `
			hub.register{hooks = {OnUserLogin = function() end}}
			error("boom")
		`},
		{"non-function hook", `hub.register{hooks = {OnUserLogin = 42}}`},
		{"missing hooks", `hub.register{name = "x"}`},
		{"fractional priority", `hub.register{priority = 1.5, hooks = {OnUserLogin = function() end}}`},
		{"string priority", `hub.register{priority = "high", hooks = {OnUserLogin = function() end}}`},
		{"double register", `
			hub.register{hooks = {OnUserLogin = function() end}}
			hub.register{hooks = {OnUserLogout = function() end}}
		`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, execctx.ModeShared)
			h := f.handle("broken")
			err := f.rt.Load(f.ctx(), h, []byte(tt.code))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, hostlua.CodeLoadError)
			assert.Equal(t, script.StateUnloaded, h.State())
			assert.False(t, f.rt.IsLoaded(h.ID()))
			assert.Empty(t, f.registry.Entries())
		})
	}
}

func TestLoad_SandboxHidesUnsafeFunctions(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	h := f.handle("escape")
	err := f.rt.Load(f.ctx(), h, []byte(`os.execute("true")`))
	errutil.AssertErrorCode(t, err, hostlua.CodeLoadError)

	h = f.handle("dofile")
	err = f.rt.Load(f.ctx(), h, []byte(`dofile("/etc/passwd")`))
	errutil.AssertErrorCode(t, err, hostlua.CodeLoadError)
}

func TestUnload_RunsCleanupAndRemovesHandlers(t *testing.T) {
	for _, mode := range []execctx.Mode{execctx.ModeShared, execctx.ModeIsolated} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, mode)
			h := f.load(t, "tidy", `
				hub.register{
					hooks = {OnUserLogin = function() end},
					cleanup = function() hub.set_config("test", "cleaned", "yes") end,
				}
			`)

			require.NoError(t, f.rt.Unload(f.ctx(), h.ID()))
			assert.Equal(t, script.StateUnloaded, h.State())
			assert.Equal(t, "yes", configValue(t, f, "cleaned"))
			assert.Empty(t, f.registry.Entries())

			_, ok := f.ctxm.TokenFor(h.ID())
			assert.False(t, ok)

			err := f.rt.Unload(f.ctx(), h.ID())
			errutil.AssertErrorCode(t, err, hostlua.CodeUnknownScript)
		})
	}
}

func TestHubRegister_ZeroAndNegativePriorities(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	appendOrder := func(name string) string {
		return `hub.set_config("test", "order", hub.get_config("test", "order", "") .. "` + name + `,")`
	}
	f.load(t, "default", `hub.register{hooks = {OnUserLogin = function() `+appendOrder("default")+` end}}`)
	f.load(t, "zero", `hub.register{priority = 0, hooks = {OnUserLogin = function() `+appendOrder("zero")+` end}}`)
	f.load(t, "negative", `hub.register{priority = -5, hooks = {OnUserLogin = function() `+appendOrder("negative")+` end}}`)

	f.fire(t, event.OnUserLogin, marshal.Str("x"))
	assert.Equal(t, "negative,zero,default,", configValue(t, f, "order"))
}

func TestHubUnregister_FromHandler(t *testing.T) {
	f := newFixture(t, execctx.ModeIsolated)
	f.load(t, "once", `
		hub.register{
			hooks = {
				OnUserLogin = function()
					hub.set_config("test", "removed", tostring(hub.unregister()))
				end,
			},
			cleanup = function() hub.set_config("test", "cleaned", "yes") end,
		}
	`)

	res := f.fire(t, event.OnUserLogin, marshal.Str("x"))
	assert.Zero(t, res.Faults)
	assert.Equal(t, "true", configValue(t, f, "removed"))
	assert.Equal(t, "yes", configValue(t, f, "cleaned"))
	assert.Empty(t, f.registry.Entries())

	res = f.fire(t, event.OnUserLogin, marshal.Str("x"))
	assert.Zero(t, res.Invoked)
}

func TestHandler_FaultIsContained(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	f.load(t, "bad", `
		hub.register{priority = 10, hooks = {OnUserLogin = function() error("nope") end}}
	`)
	f.load(t, "good", `
		hub.register{priority = 20, hooks = {OnUserLogin = function(n) hub.set_config("test", "seen", n) end}}
	`)

	res := f.fire(t, event.OnUserLogin, marshal.Str("carol"))
	assert.Equal(t, 2, res.Invoked)
	assert.Equal(t, 1, res.Faults)
	assert.Equal(t, "carol", configValue(t, f, "seen"))
}

func TestHandler_BudgetInterruptsRunawayScript(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	h := f.load(t, "spin", `
		hub.register{hooks = {OnUserLogin = function() while true do end end}}
	`)

	var faults []hook.Fault
	disp, err := hook.NewDispatcher(f.registry,
		hook.WithInvoker(f.ctxm),
		hook.WithHandlerBudget(20*time.Millisecond),
		hook.WithFaultObserver(func(fault hook.Fault) { faults = append(faults, fault) }))
	require.NoError(t, err)

	args := marshal.Pack(marshal.Str("x"))
	defer args.Release()
	res, err := disp.Dispatch(f.ctx(), event.OnUserLogin, args)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Faults)
	require.Len(t, faults, 1)
	errutil.AssertErrorCode(t, faults[0].Err, hook.CodeHandlerTimeout)
	assert.Equal(t, script.StateReady, h.State())
}

func TestHandler_StringsAreByteExact(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	f.load(t, "echo", `
		hub.register{hooks = {OnParsedMsgChat = function(nick, msg)
			hub.set_config("test", "len", tostring(#msg))
			hub.set_config("test", "msg", msg)
		end}}
	`)

	raw := []byte("a\x00b\xc3\xa9\xff")
	args := marshal.Pack(marshal.Str("n"), marshal.String(raw))
	defer args.Release()
	_, err := f.disp.Dispatch(f.ctx(), event.OnParsedMsgChat, args)
	require.NoError(t, err)
	assert.Equal(t, "6", configValue(t, f, "len"))
	assert.True(t, bytes.Equal(raw, []byte(configValue(t, f, "msg"))))
}

func TestHandler_ReturnsStopOnFalse(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	f.load(t, "deny", `hub.register{hooks = {OnValidateTag = function() return false, "ignored" end}}`)

	res := f.fire(t, event.OnValidateTag, marshal.Str("n"), marshal.Str("<tag>"))
	assert.True(t, res.Stopped)
	assert.Zero(t, f.alloc.Outstanding())
}

func TestHubAfter_RunsOnDrain(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, execctx.ModeIsolated)
	f.load(t, "timer", `
		hub.after(0, function() hub.set_config("test", "fired", "yes") end)
	`)

	require.Eventually(t, func() bool { return f.ctxm.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, configValue(t, f, "fired"))

	assert.Equal(t, 1, f.ctxm.Drain(context.Background(), f.ctxm.MainThread()))
	assert.Equal(t, "yes", configValue(t, f, "fired"))
}

func TestHubAfter_RunawayCallbackBoundedByWorkBudget(t *testing.T) {
	registry := hook.NewRegistry()
	ctxm, err := execctx.New(execctx.ModeShared, execctx.WithWorkBudget(20*time.Millisecond))
	require.NoError(t, err)
	enforcer, err := capability.FromMap(map[string][]string{
		capability.DefaultKey: {capability.ConfigWrite, capability.HubTimer},
	})
	require.NoError(t, err)
	config := hostfunc.NewMemoryConfig(nil)
	rt, err := hostlua.NewRuntime(registry, ctxm,
		hostlua.WithHostFunctions(hostfunc.New(enforcer, hostfunc.WithConfigStore(config))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	ctx := execctx.WithThread(context.Background(), ctxm.MainThread())
	h := script.NewHandle(1, "spin", "spin.lua", script.DefaultPriority)
	require.NoError(t, rt.Load(ctx, h, []byte(`
		hub.after(0, function() while true do end end)
		hub.after(0, function() hub.set_config("test", "fired", "yes") end)
	`)))
	require.Eventually(t, func() bool { return ctxm.Pending() == 2 }, time.Second, time.Millisecond)

	start := time.Now()
	assert.Equal(t, 2, ctxm.Drain(context.Background(), ctxm.MainThread()))
	assert.Less(t, time.Since(start), 2*time.Second)

	v, _, err := config.Get(context.Background(), "test", "fired")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
	assert.Equal(t, script.StateReady, h.State())
}

func TestHubAfter_CancelledByUnload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, execctx.ModeShared)
	h := f.load(t, "late", `
		hub.after(10000, function() hub.set_config("test", "fired", "yes") end)
	`)
	require.NoError(t, f.rt.Unload(f.ctx(), h.ID()))
	assert.Zero(t, f.ctxm.Pending())
}

func TestHubAfter_WorkDiscardedAfterUnload(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	h := f.load(t, "ghost", `
		hub.after(0, function() hub.set_config("test", "fired", "yes") end)
	`)
	require.Eventually(t, func() bool { return f.ctxm.Pending() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.rt.Unload(f.ctx(), h.ID()))

	assert.Zero(t, f.ctxm.Drain(context.Background(), f.ctxm.MainThread()))
	assert.Empty(t, configValue(t, f, "fired"))
}

func TestHubAfter_DropsWhenQueueStaysFull(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	f := newFixture(t, execctx.ModeShared,
		hostlua.WithLogger(logger),
		hostlua.WithTimerBackoff(func() retry.Backoff {
			return retry.WithMaxRetries(1, retry.NewConstant(time.Millisecond))
		}))

	f.load(t, "flood", `
		for i = 1, 5 do hub.after(0, function() end) end
	`)

	require.Eventually(t, func() bool {
		return logs.Contains("timer dropped")
	}, time.Second, time.Millisecond)
	assert.Equal(t, 4, f.ctxm.Pending())
}

func TestHubAfter_RequiresCapability(t *testing.T) {
	f := &fixture{registry: hook.NewRegistry()}
	ctxm, err := execctx.New(execctx.ModeShared)
	require.NoError(t, err)
	rt, err := hostlua.NewRuntime(f.registry, ctxm,
		hostlua.WithHostFunctions(hostfunc.New(capability.NewEnforcer())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	h := script.NewHandle(1, "denied", "denied.lua", 0)
	err = rt.Load(context.Background(), h, []byte(`hub.after(1, function() end)`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability denied")
}

func TestHubIdentity(t *testing.T) {
	f := newFixture(t, execctx.ModeIsolated)
	h := f.load(t, "who", `
		hub.set_config("test", "id", tostring(hub.script_id()))
		hub.set_config("test", "mode", hub.mode())
	`)
	assert.Equal(t, h.ID().String(), configValue(t, f, "id"))
	assert.Equal(t, "isolated", configValue(t, f, "mode"))
}

func TestLoad_UnknownEventHookIsKept(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	f.load(t, "custom", `hub.register{hooks = {OnSomethingNew = function() end}}`)
	assert.True(t, f.registry.Has("OnSomethingNew"))
}

func TestScriptsAndClose(t *testing.T) {
	f := newFixture(t, execctx.ModeShared)
	a := f.load(t, "a", `hub.register{hooks = {OnUserLogin = function() end}}`)
	b := f.load(t, "b", `hub.register{hooks = {OnUserLogin = function() end}}`)

	infos := f.rt.Scripts()
	require.Len(t, infos, 2)
	assert.Equal(t, a.ID(), infos[0].ID)
	assert.Equal(t, b.ID(), infos[1].ID)

	require.NoError(t, f.rt.Close(context.Background()))
	assert.Empty(t, f.rt.Scripts())
	assert.Empty(t, f.registry.Entries())

	err := f.rt.Load(context.Background(), f.handle("late"), []byte(`x = 1`))
	errutil.AssertErrorCode(t, err, hostlua.CodeLoadError)
}
