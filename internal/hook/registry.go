// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hook

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Token identifies one Register call. The zero Token is never issued.
type Token uint64

// CleanupFunc runs once when a registration is removed.
type CleanupFunc func(ctx context.Context) error

// Registration is the input to Register.
type Registration struct {
	ScriptID   script.ID
	ScriptName string
	Priority   int
	Hooks      map[string]Handler
	Cleanup    CleanupFunc
}

// counters are shared by every snapshot of an entry.
type counters struct {
	calls  atomic.Int64
	errors atomic.Int64
}

// Entry is one script's handler for one event as seen by a dispatch.
type Entry struct {
	ScriptID   script.ID
	ScriptName string
	Event      string
	Handler    Handler
	Priority   int
	Enabled    bool

	seq      uint64
	counters *counters
}

// Calls returns how many times the entry's handler has been invoked.
func (e Entry) Calls() int64 {
	if e.counters == nil {
		return 0
	}
	return e.counters.calls.Load()
}

// Errors returns how many of those invocations faulted.
func (e Entry) Errors() int64 {
	if e.counters == nil {
		return 0
	}
	return e.counters.errors.Load()
}

type registration struct {
	scriptID script.ID
	events   []string
	cleanup  CleanupFunc
	once     sync.Once
}

// Registry holds, per event, the priority-ordered handlers of every script.
type Registry struct {
	mu      sync.RWMutex
	byEvent map[string][]*Entry
	tokens  map[Token]*registration
	lastTok uint64
	lastSeq uint64
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byEvent: make(map[string][]*Entry),
		tokens:  make(map[Token]*registration),
		logger:  slog.Default(),
	}
}

// Register inserts one entry per hooked event. Each event's list stays sorted
// by ascending priority, ties keeping registration order. Priority is used as
// given; zero and negative values sort before positive ones. If the script
// already hooks any of the events nothing is inserted.
func (r *Registry) Register(reg Registration) (Token, error) {
	if len(reg.Hooks) == 0 {
		return 0, ErrEmptyRegistration(reg.ScriptID)
	}
	events := slices.Sorted(maps.Keys(reg.Hooks))
	for _, ev := range events {
		if reg.Hooks[ev] == nil {
			return 0, ErrNilHandler(reg.ScriptID, ev)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		for _, e := range r.byEvent[ev] {
			if e.ScriptID == reg.ScriptID {
				return 0, ErrDuplicateRegistration(reg.ScriptID, ev)
			}
		}
	}

	for _, ev := range events {
		r.lastSeq++
		entry := &Entry{
			ScriptID:   reg.ScriptID,
			ScriptName: reg.ScriptName,
			Event:      ev,
			Handler:    reg.Hooks[ev],
			Priority:   reg.Priority,
			Enabled:    true,
			seq:        r.lastSeq,
			counters:   &counters{},
		}
		list := append(r.byEvent[ev], entry)
		slices.SortStableFunc(list, compareEntries)
		r.byEvent[ev] = list
	}

	r.lastTok++
	tok := Token(r.lastTok)
	r.tokens[tok] = &registration{scriptID: reg.ScriptID, events: events, cleanup: reg.Cleanup}
	return tok, nil
}

func compareEntries(a, b *Entry) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Unregister removes every entry created by tok and runs its cleanup at most
// once. It reports whether anything was removed; a second call is a no-op.
func (r *Registry) Unregister(ctx context.Context, tok Token) bool {
	r.mu.Lock()
	reg, ok := r.tokens[tok]
	if ok {
		delete(r.tokens, tok)
		r.removeLocked(reg)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.runCleanup(ctx, reg)
	return true
}

// UnregisterScript removes every registration owned by id and returns how
// many were removed.
func (r *Registry) UnregisterScript(ctx context.Context, id script.ID) int {
	r.mu.Lock()
	var removed []*registration
	for tok, reg := range r.tokens {
		if reg.scriptID == id {
			delete(r.tokens, tok)
			r.removeLocked(reg)
			removed = append(removed, reg)
		}
	}
	r.mu.Unlock()

	for _, reg := range removed {
		r.runCleanup(ctx, reg)
	}
	return len(removed)
}

func (r *Registry) removeLocked(reg *registration) {
	for _, ev := range reg.events {
		list := slices.DeleteFunc(r.byEvent[ev], func(e *Entry) bool {
			return e.ScriptID == reg.scriptID
		})
		if len(list) == 0 {
			delete(r.byEvent, ev)
		} else {
			r.byEvent[ev] = list
		}
	}
}

// runCleanup is called without the registry lock so a cleanup can reach back
// into the registry.
func (r *Registry) runCleanup(ctx context.Context, reg *registration) {
	if reg.cleanup == nil {
		return
	}
	reg.once.Do(func() {
		if err := reg.cleanup(ctx); err != nil {
			errutil.LogError(r.logger, "registration cleanup failed",
				oops.In("hook").With("script_id", reg.scriptID).With("operation", "cleanup").Wrap(err))
		}
	})
}

// SetEnabled toggles every entry of script id without changing its position.
func (r *Registry) SetEnabled(id script.ID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, list := range r.byEvent {
		for _, e := range list {
			if e.ScriptID == id {
				e.Enabled = enabled
				found = true
			}
		}
	}
	if !found {
		return ErrUnknownScript(id)
	}
	return nil
}

// View is an immutable snapshot of one event's handlers.
type View struct {
	event   string
	entries []Entry
}

// HandlersFor returns a snapshot of event's handlers taken now. Later
// registry changes do not alter it.
func (r *Registry) HandlersFor(event string) View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byEvent[event]
	v := View{event: event, entries: make([]Entry, len(list))}
	for i, e := range list {
		v.entries[i] = *e
	}
	return v
}

// Event returns the event the view was taken for.
func (v View) Event() string { return v.event }

// Len returns the number of entries, enabled or not.
func (v View) Len() int { return len(v.entries) }

// All yields the enabled entries in dispatch order. It can be ranged over
// any number of times.
func (v View) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range v.entries {
			if !e.Enabled {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Has reports whether any entry exists for event.
func (r *Registry) Has(event string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent[event]) > 0
}

// Entries returns every registration ordered by event name, then dispatch order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, ev := range slices.Sorted(maps.Keys(r.byEvent)) {
		for _, e := range r.byEvent[ev] {
			out = append(out, *e)
		}
	}
	return out
}

// Events returns the number of handlers per hooked event.
func (r *Registry) Events() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.byEvent))
	for ev, list := range r.byEvent {
		out[ev] = len(list)
	}
	return out
}

// ScriptSummary aggregates the entries of one script.
type ScriptSummary struct {
	ID       script.ID
	Name     string
	Priority int
	Enabled  bool
	Events   []string
	Calls    int64
	Errors   int64
}

// Scripts returns one summary per registered script, ordered by ID. A script
// counts as enabled while any of its entries is enabled.
func (r *Registry) Scripts() []ScriptSummary {
	byID := make(map[script.ID]*ScriptSummary)
	for _, e := range r.Entries() {
		s, ok := byID[e.ScriptID]
		if !ok {
			s = &ScriptSummary{ID: e.ScriptID, Name: e.ScriptName, Priority: e.Priority}
			byID[e.ScriptID] = s
		}
		s.Enabled = s.Enabled || e.Enabled
		s.Events = append(s.Events, e.Event)
		s.Calls += e.Calls()
		s.Errors += e.Errors()
	}

	out := make([]ScriptSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b ScriptSummary) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
