// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package plugin

import (
	"github.com/samber/oops"

	pluginlua "github.com/hookhost/hookhost/internal/plugin/lua"
	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Error codes for the script lifecycle.
const (
	CodeInvalidManifest = "INVALID_MANIFEST"
	CodeDuplicateScript = "DUPLICATE_SCRIPT"
	CodeInvalidPattern  = "INVALID_PATTERN"
)

// ErrInvalidManifest wraps a manifest decode or validation failure.
func ErrInvalidManifest(cause error) error {
	return oops.In("plugin").Code(CodeInvalidManifest).Errorf("invalid manifest: %s", cause.Error())
}

// ErrLoadFile reports a script that failed before reaching the runtime.
// A coded cause keeps its code under cause_code.
func ErrLoadFile(path string, cause error) error {
	builder := oops.In("plugin").
		Code(pluginlua.CodeLoadError).
		With("path", path)
	if errutil.HasCode(cause) {
		builder = builder.With("cause_code", errutil.Code(cause))
	}
	return builder.Wrapf(errutil.Seal(cause), "load %s", path)
}

// ErrDuplicateScript reports a second load of a script name.
func ErrDuplicateScript(name string, id script.ID) error {
	return oops.In("plugin").
		Code(CodeDuplicateScript).
		With("script", name).
		With("script_id", id).
		Hint("unload the running copy first").
		Errorf("script %s is already loaded as %s", name, id)
}
