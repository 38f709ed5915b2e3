// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

// Validate checks r against f without unpacking it.
func Validate(r Reader, f Format) error {
	n := r.Len()
	if !f.Accepts(n) {
		return ErrArgumentCount(f, n)
	}
	for i := 0; i < n; i++ {
		if got := r.Slot(i).kind; got != f.Kind(i) {
			return ErrArgumentKind(f, i, f.Kind(i), got)
		}
	}
	return nil
}

// PackFormat packs values after checking them against f.
func PackFormat(f Format, values ...Value) (*CallArgs, error) {
	args := Pack(values...)
	if err := Validate(args, f); err != nil {
		args.Release()
		return nil, err
	}
	return args, nil
}

// Values is the unpacked view of a buffer. String accessors alias the
// buffer's bytes, so a Values must not outlive the buffer it came from.
type Values struct {
	slots   []Value
	present int
}

// Unpack validates r against f and returns its slots. Optional slots beyond
// the supplied count are filled with the zero value of their kind.
func Unpack(r Reader, f Format) (Values, error) {
	if err := Validate(r, f); err != nil {
		return Values{}, err
	}
	n := r.Len()
	out := Values{slots: make([]Value, f.Total()), present: n}
	for i := range out.slots {
		if i < n {
			out.slots[i] = r.Slot(i)
		} else {
			out.slots[i] = zeroValue(f.Kind(i))
		}
	}
	return out, nil
}

// Len returns the number of declared slots.
func (v Values) Len() int { return len(v.slots) }

// Present reports whether slot i was supplied by the caller.
func (v Values) Present(i int) bool { return i < v.present }

// At returns slot i.
func (v Values) At(i int) Value { return v.slots[i] }

// String returns slot i as a Go string.
func (v Values) String(i int) string { return string(v.slots[i].str) }

// Bytes returns slot i's payload without copying.
func (v Values) Bytes(i int) []byte { return v.slots[i].str }

// Int returns slot i as an integer.
func (v Values) Int(i int) int64 { return v.slots[i].num }

// Real returns slot i as a real.
func (v Values) Real(i int) float64 { return v.slots[i].real }

// Bool returns slot i as a boolean.
func (v Values) Bool(i int) bool { return v.slots[i].flag }
