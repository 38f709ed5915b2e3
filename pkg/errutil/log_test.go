// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookhost/hookhost/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.In("hook").
		Code("HANDLER_FAULT").
		Hint("check the script log").
		With("event", "OnUserLogin").
		Errorf("handler failed")

	errutil.LogError(logger, "dispatch failed", err)

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "dispatch failed", entry["msg"])
	assert.Equal(t, "HANDLER_FAULT", entry["code"])
	assert.Equal(t, "hook", entry["domain"])
	assert.Equal(t, "check the script log", entry["hint"])
	require.IsType(t, map[string]any{}, entry["context"])
	assert.Equal(t, "OnUserLogin", entry["context"].(map[string]any)["event"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestLogWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogWarn(logger, "timer dropped", oops.Code("QUEUE_FULL").Errorf("full"))

	entry := decode(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "QUEUE_FULL", entry["code"])
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", errutil.Code(nil))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("uncoded")))
	assert.Equal(t, "LOAD_ERROR", errutil.Code(oops.Code("LOAD_ERROR").Errorf("bad")))

	assert.True(t, errutil.HasCode(oops.Code("X").Errorf("x")))
	assert.False(t, errutil.HasCode(errors.New("x")))
}

func TestSeal(t *testing.T) {
	assert.NoError(t, errutil.Seal(nil))

	cause := oops.Code("DUPLICATE_SCRIPT").With("script", "echo").Wrap(fs.ErrExist)
	err := oops.Code("LOAD_ERROR").Wrap(errutil.Seal(cause))

	assert.Equal(t, "LOAD_ERROR", errutil.Code(err))
	assert.Equal(t, cause.Error(), err.Error())
	assert.ErrorIs(t, err, fs.ErrExist)

	var pathErr *fs.PathError
	wrapped := oops.Code("LOAD_ERROR").Wrap(errutil.Seal(&fs.PathError{Op: "open", Path: "x.lua", Err: fs.ErrNotExist}))
	require.ErrorAs(t, wrapped, &pathErr)
	assert.Equal(t, "x.lua", pathErr.Path)
	assert.ErrorIs(t, wrapped, fs.ErrNotExist)
}
