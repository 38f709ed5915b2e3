// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

// Kind is the declared type of an argument slot.
type Kind uint8

// Argument kinds. The zero Kind is invalid.
const (
	KindString Kind = iota + 1
	KindInteger
	KindReal
	KindBoolean
)

// Code returns the single-letter format code for k.
func (k Kind) Code() byte {
	switch k {
	case KindString:
		return 's'
	case KindInteger:
		return 'l'
	case KindReal:
		return 'd'
	case KindBoolean:
		return 'b'
	default:
		return '?'
	}
}

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	default:
		return "invalid"
	}
}

func kindFromCode(c byte) (Kind, bool) {
	switch c {
	case 's':
		return KindString, true
	case 'l':
		return KindInteger, true
	case 'd':
		return KindReal, true
	case 'b':
		return KindBoolean, true
	default:
		return 0, false
	}
}
