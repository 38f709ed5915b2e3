// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

import "sync/atomic"

// Reader is the read side shared by both buffer types.
type Reader interface {
	Len() int
	Slot(i int) Value
}

// CallArgs is a borrowed, call-direction argument list. String slots
// reference bytes owned by whoever packed them.
type CallArgs struct {
	slots    []Value
	released bool
}

// Pack builds a call-direction buffer over values. No payload is copied.
func Pack(values ...Value) *CallArgs {
	slots := make([]Value, len(values))
	copy(slots, values)
	return &CallArgs{slots: slots}
}

// Len returns the number of slots. A released or nil buffer has none.
func (c *CallArgs) Len() int {
	if c == nil {
		return 0
	}
	return len(c.slots)
}

// Slot returns slot i.
func (c *CallArgs) Slot(i int) Value { return c.slots[i] }

// Release drops the slot array. Referenced payloads are left untouched.
// Calling Release more than once is a no-op.
func (c *CallArgs) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true
	c.slots = nil
}

// ReturnArgs is an owned, return-direction argument list. Every string slot
// holds storage obtained from its allocator.
type ReturnArgs struct {
	slots []Value
	alloc Allocator
	freed atomic.Bool
}

// NewReturn copies values into a return-direction buffer, placing each
// string payload in storage obtained from alloc.
func NewReturn(alloc Allocator, values ...Value) *ReturnArgs {
	r := &ReturnArgs{slots: make([]Value, len(values)), alloc: alloc}
	for i, v := range values {
		if v.kind == KindString {
			owned := alloc.Alloc(len(v.str))
			copy(owned, v.str)
			v.str = owned
		}
		r.slots[i] = v
	}
	return r
}

// Len returns the number of slots. A freed or nil buffer has none.
func (r *ReturnArgs) Len() int {
	if r == nil || r.freed.Load() {
		return 0
	}
	return len(r.slots)
}

// Slot returns slot i.
func (r *ReturnArgs) Slot(i int) Value { return r.slots[i] }

// Free returns every owned string to the allocator and drops the slots.
// Only the first call releases anything.
func (r *ReturnArgs) Free() {
	if r == nil || r.freed.Swap(true) {
		return
	}
	for _, v := range r.slots {
		if v.kind == KindString {
			r.alloc.Release(v.str)
		}
	}
	r.slots = nil
}

var (
	_ Reader = (*CallArgs)(nil)
	_ Reader = (*ReturnArgs)(nil)
)
