// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package marshal moves typed argument lists across the host/script boundary.
//
// Two buffer types carry values. CallArgs is a borrowed view built by the host
// for a handler call: its string slots reference caller-owned bytes and
// releasing it never touches them. ReturnArgs is owned data produced by a
// handler: its string slots were copied into allocator storage and Free
// returns each of them exactly once.
package marshal
