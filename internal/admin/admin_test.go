// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package admin_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hookhost/hookhost/internal/admin"
	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/marshal"
	"github.com/hookhost/hookhost/internal/script"
)

type session struct {
	nick  string
	class int
}

func (s session) Nick() string { return s.nick }
func (s session) Class() int   { return s.class }

var (
	operator = session{nick: "op", class: 10}
	regular  = session{nick: "user", class: 1}
)

// mockRegistry is a mock for admin.Registry.
type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Entries() []hook.Entry {
	args := m.Called()
	return args.Get(0).([]hook.Entry)
}

func (m *mockRegistry) SetEnabled(id script.ID, enabled bool) error {
	args := m.Called(id, enabled)
	return args.Error(0)
}

// mockStats is a mock for admin.StatsSource.
type mockStats struct {
	mock.Mock
}

func (m *mockStats) Stats() hook.Stats {
	args := m.Called()
	return args.Get(0).(hook.Stats)
}

func (m *mockStats) ResetStats() { m.Called() }

func noop() hook.Handler {
	return hook.HandlerFunc(func(context.Context, *marshal.CallArgs) (*marshal.ReturnArgs, error) {
		return nil, nil
	})
}

type fixture struct {
	registry *hook.Registry
	disp     *hook.Dispatcher
	admin    *admin.Interface
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{registry: hook.NewRegistry()}
	var err error
	f.disp, err = hook.NewDispatcher(f.registry)
	require.NoError(t, err)
	f.admin = admin.New(f.registry, f.disp)

	for _, r := range []struct {
		id       script.ID
		name     string
		priority int
	}{{1, "greeter", 10}, {2, "logger", 50}} {
		_, err := f.registry.Register(hook.Registration{
			ScriptID:   r.id,
			ScriptName: r.name,
			Priority:   r.priority,
			Hooks: map[string]hook.Handler{
				event.OnUserLogin: noop(),
				event.OnTimer:     noop(),
			},
		})
		require.NoError(t, err)
	}
	return f
}

func TestExecute_NotAddressed(t *testing.T) {
	f := newFixture(t)
	for _, input := range []string{"", "   ", "!other list", "hookhostx list"} {
		assert.False(t, f.admin.Execute(operator, input).Handled, input)
	}
}

func TestExecute_PermissionDeniedBeforeRegistryAccess(t *testing.T) {
	reg := &mockRegistry{}
	stats := &mockStats{}
	a := admin.New(reg, stats)

	for _, input := range []string{"!hookhost list", "!hookhost disable 1", "!hookhost stats"} {
		reply := a.Execute(regular, input)
		assert.True(t, reply.Handled)
		require.Len(t, reply.Lines, 1)
		assert.True(t, strings.HasPrefix(reply.Lines[0], "Permission denied"), reply.Lines[0])
	}
	reg.AssertNotCalled(t, "Entries")
	reg.AssertNotCalled(t, "SetEnabled", mock.Anything, mock.Anything)
	stats.AssertNotCalled(t, "Stats")
}

func TestExecute_Usage(t *testing.T) {
	f := newFixture(t)
	for _, input := range []string{"!hookhost", "hookhost", "+hookhost", "!!hookhost list"} {
		reply := f.admin.Execute(operator, input)
		assert.True(t, reply.Handled, input)
		assert.Equal(t, []string{"Usage: !hookhost [list|stats|enable|disable|help]"}, reply.Lines, input)
	}
}

func TestExecute_List(t *testing.T) {
	f := newFixture(t)
	args := marshal.Pack(marshal.Str("alice"))
	defer args.Release()
	_, err := f.disp.Dispatch(context.Background(), event.OnUserLogin, args)
	require.NoError(t, err)

	reply := f.admin.Execute(operator, "!hookhost list")
	require.True(t, reply.Handled)
	assert.Equal(t, []string{
		"Registered Scripts (2):",
		"  [✓] ID=1: greeter (2 hooks, priority=10)",
		"      OnTimer: 0 calls (0 failed)",
		"      OnUserLogin: 1 calls (0 failed)",
		"  [✓] ID=2: logger (2 hooks, priority=50)",
		"      OnTimer: 0 calls (0 failed)",
		"      OnUserLogin: 1 calls (0 failed)",
	}, reply.Lines)
}

func TestExecute_EnableDisable(t *testing.T) {
	f := newFixture(t)

	reply := f.admin.Execute(operator, "!hookhost disable 2")
	assert.Equal(t, []string{"Script ID 2 disabled"}, reply.Lines)
	assert.False(t, f.admin.List()[1].Enabled)

	reply = f.admin.Execute(operator, "!hookhost DISABLE 2")
	assert.Equal(t, []string{"Script ID 2 disabled"}, reply.Lines)

	reply = f.admin.Execute(operator, "!hookhost enable 2")
	assert.Equal(t, []string{"Script ID 2 enabled"}, reply.Lines)
	assert.True(t, f.admin.List()[1].Enabled)

	reply = f.admin.Execute(operator, "!hookhost enable 99")
	assert.Equal(t, []string{"Script ID 99 not found"}, reply.Lines)

	for _, input := range []string{"!hookhost enable abc", "!hookhost disable 0", "!hookhost enable -1"} {
		reply = f.admin.Execute(operator, input)
		assert.Equal(t, []string{"Invalid script ID"}, reply.Lines, input)
	}

	reply = f.admin.Execute(operator, "!hookhost enable")
	assert.Equal(t, []string{"Usage: !hookhost enable <id>"}, reply.Lines)
}

func TestExecute_Stats(t *testing.T) {
	f := newFixture(t)
	args := marshal.Pack(marshal.Int(100))
	defer args.Release()
	_, err := f.disp.Dispatch(context.Background(), event.OnTimer, args)
	require.NoError(t, err)
	require.NoError(t, f.admin.Disable(1))

	reply := f.admin.Execute(operator, "!hookhost stats")
	require.True(t, reply.Handled)
	lines := reply.Lines
	require.GreaterOrEqual(t, len(lines), 7)
	assert.True(t, strings.HasPrefix(lines[0], "Hook Statistics (since "))
	assert.Equal(t, "  Total scripts: 2", lines[1])
	assert.Equal(t, "  Active scripts: 1", lines[2])
	assert.Equal(t, "  Disabled scripts: 1", lines[3])
	assert.Equal(t, "  Dispatches: 1 (0 stopped)", lines[4])
	assert.Equal(t, "    OnTimer: 2 calls (0 failed)", lines[6])

	reply = f.admin.Execute(operator, "!hookhost stats reset")
	assert.Equal(t, []string{"Statistics reset"}, reply.Lines)
	assert.Empty(t, f.admin.Stats().Events)
}

func TestExecute_HelpAndUnknown(t *testing.T) {
	f := newFixture(t)

	reply := f.admin.Execute(operator, "!hookhost help")
	assert.Equal(t, f.admin.Help(), reply.Lines)
	assert.Equal(t, "Hook Commands:", reply.Lines[0])

	reply = f.admin.Execute(operator, "!hookhost frobnicate now")
	assert.Equal(t, []string{"Unknown subcommand: frobnicate"}, reply.Lines)
}

func TestExecute_CustomNamespaceAndThreshold(t *testing.T) {
	reg := hook.NewRegistry()
	disp, err := hook.NewDispatcher(reg)
	require.NoError(t, err)
	a := admin.New(reg, disp, admin.WithNamespace("dispatcher"), admin.WithOperatorClass(3))

	assert.False(t, a.Execute(operator, "!hookhost list").Handled)
	reply := a.Execute(session{nick: "vip", class: 3}, "!dispatcher list")
	assert.Equal(t, []string{"Registered Scripts (0):"}, reply.Lines)
	assert.Equal(t, "dispatcher", a.Namespace())
}

func TestExecute_RecoversFromPanic(t *testing.T) {
	reg := &mockRegistry{}
	reg.On("Entries").Panic("registry exploded")
	a := admin.New(reg, &mockStats{})

	var reply admin.Reply
	assert.NotPanics(t, func() { reply = a.Execute(operator, "!hookhost list") })
	assert.True(t, reply.Handled)
	assert.Equal(t, []string{"Something went wrong. Try again."}, reply.Lines)
}

func TestParse(t *testing.T) {
	cmd, err := admin.Parse("!hookhost enable 12 extra")
	require.NoError(t, err)
	assert.Equal(t, "!", cmd.Prefix)
	assert.Equal(t, "hookhost", cmd.Namespace)
	assert.Equal(t, "enable", cmd.Subcommand)
	assert.Equal(t, []string{"12", "extra"}, cmd.Args)

	_, err = admin.Parse("")
	require.Error(t, err)
}
