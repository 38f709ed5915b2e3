// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package execctx

import (
	"time"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Error codes for execution context failures.
const (
	CodeContextSwap   = "CONTEXT_SWAP"
	CodeQueueFull     = "QUEUE_FULL"
	CodeManagerClosed = "MANAGER_CLOSED"
	CodeInvalidMode   = "INVALID_MODE"
	CodeWorkTimeout   = "WORK_TIMEOUT"
)

// ErrNoCurrentContext is returned when a thread without a valid current
// context tries to enter a script.
func ErrNoCurrentContext(owner script.ID) error {
	return oops.In("execctx").
		Code(CodeContextSwap).
		With("script_id", owner).
		With("reason", "no current context").
		Errorf("cannot swap to script %s: thread has no valid current context", owner)
}

// ErrRevokedToken is returned when the target script's token is gone.
func ErrRevokedToken(owner script.ID) error {
	return oops.In("execctx").
		Code(CodeContextSwap).
		With("script_id", owner).
		With("reason", "token revoked").
		Errorf("cannot swap to script %s: context revoked", owner)
}

// ErrQueueFull is returned when background work cannot be queued.
func ErrQueueFull(owner script.ID, size int) error {
	return oops.In("execctx").
		Code(CodeQueueFull).
		With("script_id", owner).
		With("queue_size", size).
		Errorf("background queue full")
}

// ErrWorkTimeout is returned when a drained item outlives its budget.
func ErrWorkTimeout(owner script.ID, budget time.Duration, cause error) error {
	return oops.In("execctx").
		Code(CodeWorkTimeout).
		With("script_id", owner).
		With("budget", budget.String()).
		Wrapf(errutil.Seal(cause), "background work for script %s exceeded %s", owner, budget)
}

// ErrManagerClosed is returned after Close.
func ErrManagerClosed() error {
	return oops.In("execctx").
		Code(CodeManagerClosed).
		Errorf("execution context manager is closed")
}

// ErrInvalidMode is returned for an unrecognized mode name.
func ErrInvalidMode(mode string) error {
	return oops.In("execctx").
		Code(CodeInvalidMode).
		With("mode", mode).
		Hint("use shared or isolated").
		Errorf("invalid execution mode %q", mode)
}
