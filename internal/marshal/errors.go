// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

import "github.com/samber/oops"

// Error codes for marshaling failures.
const (
	CodeArgumentCount = "ARGUMENT_COUNT"
	CodeArgumentKind  = "ARGUMENT_KIND"
	CodeInvalidFormat = "INVALID_FORMAT"
)

// ErrArgumentCount reports a supplied count outside [required, total].
func ErrArgumentCount(f Format, actual int) error {
	return oops.In("marshal").
		Code(CodeArgumentCount).
		With("format", f.String()).
		With("required", f.Required()).
		With("total", f.Total()).
		With("actual", actual).
		Errorf("argument count %d outside [%d, %d] for format %q", actual, f.Required(), f.Total(), f.String())
}

// ErrArgumentKind reports a present slot whose kind differs from the format.
func ErrArgumentKind(f Format, index int, want, got Kind) error {
	return oops.In("marshal").
		Code(CodeArgumentKind).
		With("format", f.String()).
		With("index", index).
		With("want", want.String()).
		With("got", got.String()).
		Errorf("argument %d: want %s, got %s", index, want, got)
}

// ErrInvalidFormat reports a malformed format descriptor.
func ErrInvalidFormat(format, reason string) error {
	return oops.In("marshal").
		Code(CodeInvalidFormat).
		With("format", format).
		Errorf("invalid format %q: %s", format, reason)
}
