// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hook

import (
	"sync"
	"time"
)

// EventStats are the counters kept for one event.
type EventStats struct {
	Dispatches int64
	Calls      int64
	Failures   int64
	Stops      int64
}

// ScriptCounts summarizes the registry's scripts.
type ScriptCounts struct {
	Total    int
	Active   int
	Disabled int
}

// Stats is a snapshot of dispatch statistics.
type Stats struct {
	Since   time.Time
	Events  map[string]EventStats
	Scripts ScriptCounts
}

// Totals sums the per-event counters.
func (s Stats) Totals() EventStats {
	var t EventStats
	for _, e := range s.Events {
		t.Dispatches += e.Dispatches
		t.Calls += e.Calls
		t.Failures += e.Failures
		t.Stops += e.Stops
	}
	return t
}

type statsTable struct {
	mu     sync.Mutex
	since  time.Time
	events map[string]*EventStats
}

func newStatsTable() *statsTable {
	return &statsTable{since: time.Now(), events: make(map[string]*EventStats)}
}

func (t *statsTable) add(event string, calls, failures int, stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.events[event]
	if !ok {
		s = &EventStats{}
		t.events[event] = s
	}
	s.Dispatches++
	s.Calls += int64(calls)
	s.Failures += int64(failures)
	if stopped {
		s.Stops++
	}
}

func (t *statsTable) snapshot() (time.Time, map[string]EventStats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]EventStats, len(t.events))
	for ev, s := range t.events {
		out[ev] = *s
	}
	return t.since, out
}

func (t *statsTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.since = time.Now()
	t.events = make(map[string]*EventStats)
}
