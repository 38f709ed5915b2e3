// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package capability decides which hub functions a script may call.
//
// Grants are gobwas/glob patterns with '.' as the segment separator:
//   - '*' matches a single segment ("config.*" matches "config.read")
//   - '**' matches any number of segments
//
// Grants are keyed by script name. The DefaultKey entry applies to every
// script that has no entry of its own.
package capability

import (
	"maps"
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capabilities guarding hub functions.
const (
	ConfigRead  = "config.read"
	ConfigWrite = "config.write"
	HubSend     = "hub.send"
	HubTimer    = "hub.timer"
)

// DefaultKey selects the grants used for scripts without their own.
const DefaultKey = "*"

// CodeInvalidGrant marks a grant pattern that failed to compile.
const CodeInvalidGrant = "INVALID_GRANT"

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks script capabilities. It is safe for concurrent use.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]compiledGrant
}

// NewEnforcer creates an enforcer with no grants.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// FromMap builds an enforcer from a name -> patterns map.
func FromMap(m map[string][]string) (*Enforcer, error) {
	e := NewEnforcer()
	for _, name := range slices.Sorted(maps.Keys(m)) {
		if err := e.SetGrants(name, m[name]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetGrants replaces the grants for script. On error nothing changes.
func (e *Enforcer) SetGrants(script string, patterns []string) error {
	if script == "" {
		return oops.In("capability").Code(CodeInvalidGrant).Errorf("script name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.In("capability").Code(CodeInvalidGrant).
				With("script", script).With("index", i).
				Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.In("capability").Code(CodeInvalidGrant).
				With("script", script).With("pattern", pattern).
				Wrap(err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants[script] = compiled
	return nil
}

// RemoveGrants drops script's own grants.
func (e *Enforcer) RemoveGrants(script string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, script)
}

// Own returns script's own patterns, if it has an entry.
func (e *Enforcer) Own(script string) ([]string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[script]
	if !ok {
		return nil, false
	}
	return patternsOf(grants), true
}

// Grants returns the patterns in effect for script.
func (e *Enforcer) Grants(script string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return patternsOf(e.effectiveLocked(script))
}

func patternsOf(grants []compiledGrant) []string {
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

func (e *Enforcer) effectiveLocked(script string) []compiledGrant {
	if grants, ok := e.grants[script]; ok {
		return grants
	}
	return e.grants[DefaultKey]
}

// Check reports whether script holds capability. Unknown scripts and empty
// capabilities are denied unless the default grants allow them.
func (e *Enforcer) Check(script, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.effectiveLocked(script) {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}
