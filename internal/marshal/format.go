// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

// optionalMarker separates required codes from optional trailing codes.
const optionalMarker = '|'

// Format describes the ordered kinds of an argument list. Codes before the
// optional marker are required, codes after it may be omitted from the end.
type Format struct {
	raw      string
	kinds    []Kind
	required int
}

// ParseFormat parses a descriptor such as "sslb|s".
func ParseFormat(s string) (Format, error) {
	f := Format{raw: s, required: -1}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == optionalMarker {
			if f.required >= 0 {
				return Format{}, ErrInvalidFormat(s, "more than one optional marker")
			}
			f.required = len(f.kinds)
			continue
		}
		k, ok := kindFromCode(c)
		if !ok {
			return Format{}, ErrInvalidFormat(s, "unknown kind code "+string(c))
		}
		f.kinds = append(f.kinds, k)
	}
	if f.required < 0 {
		f.required = len(f.kinds)
	}
	return f, nil
}

// MustParseFormat is like ParseFormat but panics on error. Intended for
// package-level catalogs.
func MustParseFormat(s string) Format {
	f, err := ParseFormat(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Required returns the number of mandatory slots.
func (f Format) Required() int { return f.required }

// Total returns the number of declared slots, required and optional.
func (f Format) Total() int { return len(f.kinds) }

// Kind returns the declared kind of slot i.
func (f Format) Kind(i int) Kind { return f.kinds[i] }

// String returns the descriptor in its textual form.
func (f Format) String() string { return f.raw }

// Accepts reports whether n supplied arguments fall within the format's bounds.
func (f Format) Accepts(n int) bool {
	return n >= f.required && n <= len(f.kinds)
}
