// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package admin implements the operator commands that inspect and toggle
// script hooks.
package admin

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/hook"
	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Defaults for the command surface.
const (
	DefaultNamespace     = "hookhost"
	DefaultOperatorClass = 10
	DefaultPrefix        = "!"
)

// Session is the connection issuing a command.
type Session interface {
	Nick() string
	Class() int
}

// Registry is the part of the hook registry commands use.
type Registry interface {
	Entries() []hook.Entry
	SetEnabled(id script.ID, enabled bool) error
}

// StatsSource supplies dispatch statistics.
type StatsSource interface {
	Stats() hook.Stats
	ResetStats()
}

// Reply is the outcome of Execute. Handled is false when the command was
// not addressed to the namespace.
type Reply struct {
	Handled bool
	Lines   []string
}

// EventCounts are the counters of one script's hook.
type EventCounts struct {
	Event  string
	Calls  int64
	Errors int64
}

// Listing describes one registered script.
type Listing struct {
	ID       script.ID
	Name     string
	Priority int
	Enabled  bool
	Events   []EventCounts
}

// Interface executes admin commands.
type Interface struct {
	registry  Registry
	stats     StatsSource
	namespace string
	threshold int
	logger    *slog.Logger
}

// Option configures an Interface.
type Option func(*Interface)

// WithNamespace sets the command namespace.
func WithNamespace(ns string) Option {
	return func(a *Interface) {
		if ns != "" {
			a.namespace = ns
		}
	}
}

// WithOperatorClass sets the minimum session class allowed to run commands.
func WithOperatorClass(class int) Option {
	return func(a *Interface) {
		a.threshold = class
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Interface) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an admin interface over registry and stats.
func New(registry Registry, stats StatsSource, opts ...Option) *Interface {
	a := &Interface{
		registry:  registry,
		stats:     stats,
		namespace: DefaultNamespace,
		threshold: DefaultOperatorClass,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Namespace returns the namespace commands are addressed to.
func (a *Interface) Namespace() string { return a.namespace }

// List returns every registered script ordered by ID, with counters per
// hooked event.
func (a *Interface) List() []Listing {
	byID := make(map[script.ID]*Listing)
	for _, e := range a.registry.Entries() {
		l, ok := byID[e.ScriptID]
		if !ok {
			l = &Listing{ID: e.ScriptID, Name: e.ScriptName, Priority: e.Priority}
			byID[e.ScriptID] = l
		}
		l.Enabled = l.Enabled || e.Enabled
		l.Events = append(l.Events, EventCounts{Event: e.Event, Calls: e.Calls(), Errors: e.Errors()})
	}

	out := make([]Listing, 0, len(byID))
	for _, l := range byID {
		slices.SortFunc(l.Events, func(x, y EventCounts) int { return strings.Compare(x.Event, y.Event) })
		out = append(out, *l)
	}
	slices.SortFunc(out, func(x, y Listing) int { return cmp.Compare(x.ID, y.ID) })
	return out
}

// Stats returns the dispatch statistics.
func (a *Interface) Stats() hook.Stats { return a.stats.Stats() }

// Enable re-enables a script's handlers.
func (a *Interface) Enable(id script.ID) error { return a.registry.SetEnabled(id, true) }

// Disable stops a script's handlers from being invoked.
func (a *Interface) Disable(id script.ID) error { return a.registry.SetEnabled(id, false) }

// Help returns the usage text.
func (a *Interface) Help() []string {
	p := DefaultPrefix + a.namespace
	return []string{
		"Hook Commands:",
		fmt.Sprintf("  %s list           - List all registered scripts", p),
		fmt.Sprintf("  %s stats          - Show dispatch statistics", p),
		fmt.Sprintf("  %s stats reset    - Reset dispatch statistics", p),
		fmt.Sprintf("  %s enable <id>    - Enable a script", p),
		fmt.Sprintf("  %s disable <id>   - Disable a script", p),
		fmt.Sprintf("  %s help           - Show this help", p),
	}
}

func (a *Interface) usage() string {
	return fmt.Sprintf("Usage: %s%s [list|stats|enable|disable|help]", DefaultPrefix, a.namespace)
}

// Addressed reports whether input is a command for this namespace.
func (a *Interface) Addressed(input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	return strings.TrimLeft(fields[0], "!+") == a.namespace
}

// Execute runs one command line for session. The privilege check happens
// before any registry access. It never panics.
func (a *Interface) Execute(session Session, input string) (reply Reply) {
	if !a.Addressed(input) {
		return Reply{}
	}
	defer func() {
		if r := recover(); r != nil {
			errutil.LogError(a.logger, "admin command panicked",
				oops.In("admin").With("input", input).With("panic", r).Errorf("panic: %v", r))
			reply = Reply{Handled: true, Lines: []string{OperatorMessage(nil)}}
		}
	}()

	if session.Class() < a.threshold {
		err := ErrPermissionDenied(session.Nick(), session.Class(), a.threshold)
		errutil.LogWarn(a.logger, "admin command rejected", err)
		return a.fail(err)
	}

	cmd, err := Parse(input)
	if err != nil || cmd.Subcommand == "" {
		return Reply{Handled: true, Lines: []string{a.usage()}}
	}

	a.logger.Info("admin command",
		"nick", session.Nick(),
		"subcommand", cmd.Subcommand)

	switch sub := strings.ToLower(cmd.Subcommand); sub {
	case "list":
		return a.replyList()
	case "stats":
		if len(cmd.Args) > 0 && strings.EqualFold(cmd.Args[0], "reset") {
			a.stats.ResetStats()
			return Reply{Handled: true, Lines: []string{"Statistics reset"}}
		}
		return a.replyStats()
	case "enable", "disable":
		return a.toggle(sub, cmd.Args)
	case "help":
		return Reply{Handled: true, Lines: a.Help()}
	default:
		return a.fail(ErrUnknownSubcommand(cmd.Subcommand))
	}
}

func (a *Interface) fail(err error) Reply {
	return Reply{Handled: true, Lines: []string{OperatorMessage(err)}}
}

func (a *Interface) toggle(sub string, args []string) Reply {
	if len(args) == 0 {
		return a.fail(ErrMissingArgument(sub, fmt.Sprintf("%s%s %s <id>", DefaultPrefix, a.namespace, sub)))
	}
	id, err := script.ParseID(args[0])
	if err != nil {
		return a.fail(err)
	}

	if sub == "enable" {
		err = a.Enable(id)
	} else {
		err = a.Disable(id)
	}
	if err != nil {
		return a.fail(err)
	}
	return Reply{Handled: true, Lines: []string{fmt.Sprintf("Script ID %s %sd", id, sub)}}
}

func (a *Interface) replyList() Reply {
	scripts := a.List()
	lines := []string{fmt.Sprintf("Registered Scripts (%d):", len(scripts))}
	for _, s := range scripts {
		status := "✓"
		if !s.Enabled {
			status = "✗"
		}
		lines = append(lines, fmt.Sprintf("  [%s] ID=%s: %s (%d hooks, priority=%d)",
			status, s.ID, s.Name, len(s.Events), s.Priority))
		for _, e := range s.Events {
			lines = append(lines, fmt.Sprintf("      %s: %d calls (%d failed)", e.Event, e.Calls, e.Errors))
		}
	}
	return Reply{Handled: true, Lines: lines}
}

func (a *Interface) replyStats() Reply {
	st := a.Stats()
	totals := st.Totals()
	lines := []string{
		fmt.Sprintf("Hook Statistics (since %s):", st.Since.UTC().Format(time.RFC3339)),
		fmt.Sprintf("  Total scripts: %d", st.Scripts.Total),
		fmt.Sprintf("  Active scripts: %d", st.Scripts.Active),
		fmt.Sprintf("  Disabled scripts: %d", st.Scripts.Disabled),
		fmt.Sprintf("  Dispatches: %d (%d stopped)", totals.Dispatches, totals.Stops),
		"  Hook calls:",
	}
	events := make([]string, 0, len(st.Events))
	for ev := range st.Events {
		events = append(events, ev)
	}
	slices.Sort(events)
	for _, ev := range events {
		e := st.Events[ev]
		lines = append(lines, fmt.Sprintf("    %s: %d calls (%d failed)", ev, e.Calls, e.Failures))
	}
	return Reply{Handled: true, Lines: lines}
}
