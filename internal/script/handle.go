// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package script defines the identity and lifecycle of a loaded script.
package script

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

// DefaultPriority is used when a script does not declare one. Lower runs earlier.
const DefaultPriority = 100

// Error codes for script lifecycle failures.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidID         = "INVALID_SCRIPT_ID"
)

// ID identifies a loaded script. IDs are never reused within a process.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, oops.In("script").Code(CodeInvalidID).With("input", s).Errorf("invalid script id %q", s)
	}
	return ID(n), nil
}

// IDSource issues monotonically increasing IDs starting at 1.
type IDSource struct {
	last atomic.Uint64
}

// Next returns a fresh ID.
func (s *IDSource) Next() ID { return ID(s.last.Add(1)) }

// State is the lifecycle state of a script.
type State int

// Lifecycle states.
const (
	StateLoading State = iota
	StateReady
	StateRunning
	StateUnloading
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateLoading:   {StateReady, StateUnloaded},
	StateReady:     {StateRunning, StateUnloading},
	StateRunning:   {StateReady},
	StateUnloading: {StateUnloaded},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Handle is the host-side record of one script.
type Handle struct {
	id       ID
	name     string
	path     string
	priority int

	mu       sync.Mutex
	state    State
	depth    int
	loadedAt time.Time
}

// NewHandle creates a handle in the loading state.
func NewHandle(id ID, name, path string, priority int) *Handle {
	return &Handle{id: id, name: name, path: path, priority: priority}
}

// ID returns the script's identity.
func (h *Handle) ID() ID { return h.id }

// Name returns the script's display name.
func (h *Handle) Name() string { return h.name }

// Path returns the file the script was loaded from.
func (h *Handle) Path() string { return h.path }

// Priority returns the script's dispatch priority.
func (h *Handle) Priority() int { return h.priority }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LoadedAt returns when the script first became ready.
func (h *Handle) LoadedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadedAt
}

// Transition moves the handle to state to.
func (h *Handle) Transition(to State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transitionLocked(to)
}

func (h *Handle) transitionLocked(to State) error {
	if !allowed(h.state, to) {
		return oops.In("script").
			Code(CodeInvalidTransition).
			With("script_id", h.id).
			With("from", h.state.String()).
			With("to", to.String()).
			Errorf("invalid transition %s -> %s", h.state, to)
	}
	if to == StateReady && h.loadedAt.IsZero() {
		h.loadedAt = time.Now()
	}
	h.state = to
	return nil
}

// BeginRun marks the script as running a handler. Nested calls, such as a
// handler firing an event hooked by the same script, only deepen the count.
func (h *Handle) BeginRun() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRunning {
		h.depth++
		return nil
	}
	if err := h.transitionLocked(StateRunning); err != nil {
		return err
	}
	h.depth = 1
	return nil
}

// EndRun undoes one BeginRun.
func (h *Handle) EndRun() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.depth == 0 {
		return
	}
	h.depth--
	if h.depth == 0 && h.state == StateRunning {
		h.state = StateReady
	}
}

// Info is a point-in-time copy of a handle.
type Info struct {
	ID       ID
	Name     string
	Path     string
	Priority int
	State    State
	LoadedAt time.Time
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Info{
		ID:       h.id,
		Name:     h.name,
		Path:     h.path,
		Priority: h.priority,
		State:    h.state,
		LoadedAt: h.loadedAt,
	}
}
