// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package lua

import (
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/hookhost/hookhost/internal/marshal"
)

// toLua converts one argument slot. Strings are copied byte for byte.
func toLua(v marshal.Value) lua.LValue {
	switch v.Kind() {
	case marshal.KindString:
		return lua.LString(v.Bytes())
	case marshal.KindInteger:
		return lua.LNumber(v.Int())
	case marshal.KindReal:
		return lua.LNumber(v.Real())
	case marshal.KindBoolean:
		return lua.LBool(v.Bool())
	default:
		return lua.LNil
	}
}

// fromLua converts one Lua return value. Integral numbers become integers.
// Values with no marshal kind report false.
func fromLua(lv lua.LValue) (marshal.Value, bool) {
	switch v := lv.(type) {
	case lua.LString:
		return marshal.Str(string(v)), true
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return marshal.Int(int64(f)), true
		}
		return marshal.Real(f), true
	case lua.LBool:
		return marshal.Bool(bool(v)), true
	default:
		return marshal.Value{}, false
	}
}
