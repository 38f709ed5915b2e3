// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

import "strconv"

// Value is one argument slot. String payloads are opaque bytes of known
// length, so embedded NUL bytes and multi-byte text survive unchanged.
type Value struct {
	kind Kind
	str  []byte
	num  int64
	real float64
	flag bool
}

// String wraps b without copying. The caller keeps ownership of b.
func String(b []byte) Value { return Value{kind: KindString, str: b} }

// Str builds a string value from s.
func Str(s string) Value { return Value{kind: KindString, str: []byte(s)} }

// Int builds an integer value.
func Int(n int64) Value { return Value{kind: KindInteger, num: n} }

// Real builds a real value.
func Real(f float64) Value { return Value{kind: KindReal, real: f} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, flag: b} }

// zeroValue returns the explicit zero of kind k.
func zeroValue(k Kind) Value {
	if k == KindString {
		return Value{kind: k, str: []byte{}}
	}
	return Value{kind: k}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Bytes returns the string payload. It aliases the buffer holding the value.
func (v Value) Bytes() []byte { return v.str }

// Text returns the string payload as a Go string.
func (v Value) Text() string { return string(v.str) }

// Int returns the integer payload.
func (v Value) Int() int64 { return v.num }

// Real returns the real payload.
func (v Value) Real() float64 { return v.real }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.flag }

// IsZero reports whether v holds the zero of its kind.
func (v Value) IsZero() bool {
	switch v.kind {
	case KindString:
		return len(v.str) == 0
	case KindInteger:
		return v.num == 0
	case KindReal:
		return v.real == 0
	case KindBoolean:
		return !v.flag
	default:
		return true
	}
}

// GoString renders v for logs and test failures.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(string(v.str))
	case KindInteger:
		return strconv.FormatInt(v.num, 10)
	case KindReal:
		return strconv.FormatFloat(v.real, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.flag)
	default:
		return "<invalid>"
	}
}
