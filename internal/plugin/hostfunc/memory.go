// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hostfunc

import (
	"context"
	"maps"
	"sync"
)

// MemoryConfig is an in-process ConfigStore.
type MemoryConfig struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
}

// NewMemoryConfig creates a store seeded with initial, which is copied.
func NewMemoryConfig(initial map[string]map[string]string) *MemoryConfig {
	m := &MemoryConfig{sections: make(map[string]map[string]string, len(initial))}
	for section, values := range initial {
		m.sections[section] = maps.Clone(values)
	}
	return m
}

// Get returns the value of key in section.
func (m *MemoryConfig) Get(_ context.Context, section, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.sections[section][key]
	return v, ok, nil
}

// Set stores value under key in section.
func (m *MemoryConfig) Set(_ context.Context, section, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sections[section] == nil {
		m.sections[section] = make(map[string]string)
	}
	m.sections[section][key] = value
	return nil
}

var _ ConfigStore = (*MemoryConfig)(nil)
