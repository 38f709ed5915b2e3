// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package capability_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookhost/hookhost/internal/plugin/capability"
	"github.com/hookhost/hookhost/pkg/errutil"
)

func TestEnforcer_Check(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("greeter", []string{"hub.send", "config.*"}))

	tests := []struct {
		name       string
		script     string
		capability string
		want       bool
	}{
		{"exact", "greeter", "hub.send", true},
		{"single segment wildcard", "greeter", "config.read", true},
		{"wildcard does not cross segments", "greeter", "config.read.secret", false},
		{"not granted", "greeter", "hub.timer", false},
		{"unknown script", "other", "hub.send", false},
		{"empty capability", "greeter", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Check(tt.script, tt.capability))
		})
	}
}

func TestEnforcer_DefaultGrants(t *testing.T) {
	e, err := capability.FromMap(map[string][]string{
		capability.DefaultKey: {"config.read", "hub.timer"},
		"admin-tools":         {"**"},
		"locked":              {},
	})
	require.NoError(t, err)

	assert.True(t, e.Check("anyone", capability.ConfigRead))
	assert.False(t, e.Check("anyone", capability.ConfigWrite))
	assert.True(t, e.Check("admin-tools", "config.write"))
	assert.False(t, e.Check("locked", capability.ConfigRead), "own grants replace the default")
	assert.Equal(t, []string{"config.read", "hub.timer"}, e.Grants("anyone"))
}

func TestEnforcer_SetGrantsIsAtomic(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("s", []string{"hub.send"}))

	err := e.SetGrants("s", []string{"config.read", "[unclosed"})
	errutil.AssertErrorCode(t, err, capability.CodeInvalidGrant)
	errutil.AssertErrorContext(t, err, "pattern", "[unclosed")
	assert.Equal(t, []string{"hub.send"}, e.Grants("s"))

	err = e.SetGrants("s", []string{""})
	errutil.AssertErrorCode(t, err, capability.CodeInvalidGrant)

	err = e.SetGrants("", []string{"hub.send"})
	errutil.AssertErrorCode(t, err, capability.CodeInvalidGrant)
}

func TestEnforcer_RemoveGrants(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("s", []string{"hub.send"}))
	e.RemoveGrants("s")
	assert.False(t, e.Check("s", "hub.send"))
	assert.Empty(t, e.Grants("s"))
}

func TestEnforcer_Concurrent(t *testing.T) {
	e := capability.NewEnforcer()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = e.SetGrants("s", []string{"hub.*"})
		}()
		go func() {
			defer wg.Done()
			_ = e.Check("s", "hub.send")
		}()
	}
	wg.Wait()
	assert.True(t, e.Check("s", "hub.send"))
}

func TestEnforcer_Own(t *testing.T) {
	e, err := capability.FromMap(map[string][]string{
		capability.DefaultKey: {"config.read"},
		"bot":                 {"hub.send"},
	})
	require.NoError(t, err)

	own, ok := e.Own("bot")
	assert.True(t, ok)
	assert.Equal(t, []string{"hub.send"}, own)

	_, ok = e.Own("other")
	assert.False(t, ok)
	assert.Equal(t, []string{"config.read"}, e.Grants("other"))
}
