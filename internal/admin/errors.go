// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package admin

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/script"
)

// Error codes for admin command failures.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeParse            = "PARSE_ERROR"
	CodeUnknownCommand   = "UNKNOWN_SUBCOMMAND"
	CodeMissingArgument  = "MISSING_ARGUMENT"
)

// ErrPermissionDenied creates an error for a session below the threshold.
func ErrPermissionDenied(nick string, class, required int) error {
	return oops.In("admin").
		Code(CodePermissionDenied).
		With("nick", nick).
		With("class", class).
		With("required", required).
		Errorf("permission denied for %s", nick)
}

// ErrParse wraps a grammar failure.
func ErrParse(input string, cause error) error {
	return oops.In("admin").Code(CodeParse).With("input", input).Wrap(cause)
}

// ErrUnknownSubcommand creates an error for an unrecognized subcommand.
func ErrUnknownSubcommand(sub string) error {
	return oops.In("admin").
		Code(CodeUnknownCommand).
		With("subcommand", sub).
		Errorf("unknown subcommand: %s", sub)
}

// ErrMissingArgument creates an error for a subcommand missing its argument.
func ErrMissingArgument(sub, usage string) error {
	return oops.In("admin").
		Code(CodeMissingArgument).
		With("subcommand", sub).
		With("usage", usage).
		Errorf("%s requires an argument", sub)
}

// OperatorMessage extracts an operator-facing message from an error.
func OperatorMessage(err error) string {
	if err == nil {
		return "Something went wrong. Try again."
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Something went wrong. Try again."
	}

	switch fmt.Sprint(oopsErr.Code()) {
	case CodePermissionDenied:
		if required, ok := oopsErr.Context()["required"].(int); ok {
			return fmt.Sprintf("Permission denied. Class %d or higher required.", required)
		}
		return "Permission denied."
	case hook.CodeUnknownScript:
		if id, ok := oopsErr.Context()["script_id"].(script.ID); ok {
			return fmt.Sprintf("Script ID %s not found", id)
		}
		return "Script not found"
	case script.CodeInvalidID:
		return "Invalid script ID"
	case CodeUnknownCommand:
		if sub, ok := oopsErr.Context()["subcommand"].(string); ok {
			return "Unknown subcommand: " + sub
		}
		return "Unknown subcommand"
	case CodeMissingArgument:
		if usage, ok := oopsErr.Context()["usage"].(string); ok && usage != "" {
			return "Usage: " + usage
		}
		return "Missing argument."
	default:
		return "Something went wrong. Try again."
	}
}
