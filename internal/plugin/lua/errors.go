// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package lua

import (
	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Error codes for the Lua runtime.
const (
	CodeLoadError     = "LOAD_ERROR"
	CodeUnknownScript = "UNKNOWN_SCRIPT"
	CodeRuntimeClosed = "RUNTIME_CLOSED"
)

// ErrLoad wraps a failure to bring a script to ready. The result always
// carries CodeLoadError; a coded cause keeps its code under cause_code.
func ErrLoad(h *script.Handle, cause error) error {
	builder := oops.In("lua").
		Code(CodeLoadError).
		With("script", h.Name()).
		With("script_id", h.ID()).
		With("path", h.Path()).
		With("operation", "load")
	if errutil.HasCode(cause) {
		return builder.With("cause_code", errutil.Code(cause)).Wrap(errutil.Seal(cause))
	}
	return builder.Wrap(cause)
}

// ErrUnknownScript is returned for an ID the runtime does not hold.
func ErrUnknownScript(id script.ID) error {
	return oops.In("lua").
		Code(CodeUnknownScript).
		With("script_id", id).
		Errorf("script %s is not loaded", id)
}

// ErrRuntimeClosed is returned by Load after Close.
func ErrRuntimeClosed() error {
	return oops.In("lua").Code(CodeRuntimeClosed).Errorf("runtime is closed")
}
