// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package errutil

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}

// HasCode reports whether err carries an oops code.
func HasCode(err error) bool {
	return Code(err) != ""
}

// Seal wraps err so that oops lookups stop at the wrapper: an outer coded
// error keeps its own code and context. errors.Is and errors.As still reach
// every error in the chain for targets other than oops.OopsError.
func Seal(err error) error {
	if err == nil {
		return nil
	}
	return sealed{err: err}
}

type sealed struct{ err error }

func (s sealed) Error() string { return s.err.Error() }

func (s sealed) Is(target error) bool { return errors.Is(s.err, target) }

func (s sealed) As(target any) bool {
	if _, ok := target.(*oops.OopsError); ok {
		return false
	}
	return errors.As(s.err, target)
}
