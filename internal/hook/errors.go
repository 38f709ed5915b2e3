// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hook

import (
	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/script"
)

// Error codes for registry and dispatch failures.
const (
	CodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	CodeUnknownScript         = "UNKNOWN_SCRIPT"
	CodeInvalidRegistration   = "INVALID_REGISTRATION"
	CodeHandlerFault          = "HANDLER_FAULT"
	CodeHandlerPanic          = "HANDLER_PANIC"
	CodeHandlerTimeout        = "HANDLER_TIMEOUT"
)

// ErrNilRegistry is returned when constructing a Dispatcher without a registry.
var ErrNilRegistry = oops.In("hook").Code(CodeInvalidRegistration).Errorf("registry cannot be nil")

// ErrDuplicateRegistration creates an error for a script hooking an event twice.
func ErrDuplicateRegistration(id script.ID, event string) error {
	return oops.In("hook").
		Code(CodeDuplicateRegistration).
		With("script_id", id).
		With("event", event).
		Errorf("script %s already registered for %s", id, event)
}

// ErrUnknownScript creates an error for a script with no registrations.
func ErrUnknownScript(id script.ID) error {
	return oops.In("hook").
		Code(CodeUnknownScript).
		With("script_id", id).
		Errorf("unknown script: %s", id)
}

// ErrEmptyRegistration creates an error for a registration without hooks.
func ErrEmptyRegistration(id script.ID) error {
	return oops.In("hook").
		Code(CodeInvalidRegistration).
		With("script_id", id).
		Errorf("registration has no hooks")
}

// ErrNilHandler creates an error for a hook without a handler.
func ErrNilHandler(id script.ID, event string) error {
	return oops.In("hook").
		Code(CodeInvalidRegistration).
		With("script_id", id).
		With("event", event).
		Errorf("nil handler for %s", event)
}

// ErrHandlerPanic creates an error for a recovered handler panic.
func ErrHandlerPanic(recovered any) error {
	return oops.In("hook").
		Code(CodeHandlerPanic).
		With("panic", recovered).
		Errorf("handler panicked: %v", recovered)
}
