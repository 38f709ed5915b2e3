// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package lua runs hub scripts in sandboxed gopher-lua states.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// safeLibrary is a Lua library that may be opened in a sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns base, table, string and math. The os, io,
// debug and package libraries are never opened.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions reach the filesystem or compile arbitrary chunks.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// StateFactory creates sandboxed Lua states.
type StateFactory struct {
	libraries []safeLibrary
}

// NewStateFactory creates a factory that opens the safe libraries.
func NewStateFactory() *StateFactory {
	return &StateFactory{libraries: defaultSafeLibraries()}
}

// NewState creates a state with only the safe libraries and without the
// unsafe base functions.
func (f *StateFactory) NewState(_ context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("lua").With("library", lib.name).Hint("failed to open library").Wrap(err)
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}
	return L, nil
}

// NewEnv creates a script environment table in L. Reads fall through to the
// state's globals; writes stay in the environment, so scripts sharing a
// state never see each other's globals.
func NewEnv(L *lua.LState) *lua.LTable {
	env := L.NewTable()
	meta := L.NewTable()
	L.SetField(meta, "__index", L.Get(lua.GlobalsIndex))
	L.SetMetatable(env, meta)
	env.RawSetString("_G", env)
	return env
}
