// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package hostfunc provides the hub functions exposed to Lua scripts.
//
// Functions that reach hub state require a capability; logging and request
// IDs are always available.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/internal/script"
)

// ConfigStore is the hub's persistent configuration, grouped in sections.
type ConfigStore interface {
	Get(ctx context.Context, section, key string) (string, bool, error)
	Set(ctx context.Context, section, key, value string) error
}

// Messenger delivers a message to a connected user.
type Messenger interface {
	Send(ctx context.Context, nick, message string) error
}

// Functions provides hub functions to Lua scripts.
type Functions struct {
	config    ConfigStore
	messenger Messenger
	enforcer  *capability.Enforcer
	logger    *slog.Logger
}

// Option configures Functions.
type Option func(*Functions)

// WithConfigStore backs hub.get_config and hub.set_config.
func WithConfigStore(store ConfigStore) Option {
	return func(f *Functions) { f.config = store }
}

// WithMessenger backs hub.send.
func WithMessenger(m Messenger) Option {
	return func(f *Functions) { f.messenger = m }
}

// WithLogger sets the logger behind hub.log.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Functions) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates hub functions checked against enforcer.
// Panics if enforcer is nil.
func New(enforcer *capability.Enforcer, opts ...Option) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	f := &Functions{enforcer: enforcer, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enforcer returns the capability enforcer guarding the functions.
func (f *Functions) Enforcer() *capability.Enforcer { return f.enforcer }

// Install adds the hub functions for one script to mod.
func (f *Functions) Install(L *lua.LState, mod *lua.LTable, name string, id script.ID) {
	L.SetField(mod, "log", L.NewFunction(f.logFn(name, id)))
	L.SetField(mod, "new_request_id", L.NewFunction(newRequestID))
	L.SetField(mod, "get_config", L.NewFunction(f.Guard(name, capability.ConfigRead, f.getConfigFn())))
	L.SetField(mod, "set_config", L.NewFunction(f.Guard(name, capability.ConfigWrite, f.setConfigFn())))
	L.SetField(mod, "send", L.NewFunction(f.Guard(name, capability.HubSend, f.sendFn())))
}

// Guard raises a Lua error unless script holds capName.
func (f *Functions) Guard(name, capName string, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if !f.enforcer.Check(name, capName) {
			L.RaiseError("capability denied: %s requires %s", name, capName)
			return 0
		}
		return fn(L)
	}
}

func (f *Functions) logFn(name string, id script.ID) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := f.logger.With("script", name, "script_id", id)
		ctx := luaContext(L)
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			logger.InfoContext(ctx, message)
		}
		return 0
	}
}

func newRequestID(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func (f *Functions) getConfigFn() lua.LGFunction {
	return func(L *lua.LState) int {
		section := L.CheckString(1)
		key := L.CheckString(2)
		fallback := L.Get(3)

		if f.config == nil {
			return pushError(L, "config store not available")
		}
		value, ok, err := f.config.Get(luaContext(L), section, key)
		if err != nil {
			return pushError(L, err.Error())
		}
		if !ok {
			return pushSuccess(L, fallback)
		}
		return pushSuccess(L, lua.LString(value))
	}
}

func (f *Functions) setConfigFn() lua.LGFunction {
	return func(L *lua.LState) int {
		section := L.CheckString(1)
		key := L.CheckString(2)
		value := L.CheckString(3)

		if f.config == nil {
			return pushError(L, "config store not available")
		}
		if err := f.config.Set(luaContext(L), section, key, value); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}

func (f *Functions) sendFn() lua.LGFunction {
	return func(L *lua.LState) int {
		nick := L.CheckString(1)
		message := L.CheckString(2)

		if f.messenger == nil {
			return pushError(L, "messenger not available")
		}
		if err := f.messenger.Send(luaContext(L), nick, message); err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}
