// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hookhost/hookhost/internal/event"
	"github.com/hookhost/hookhost/internal/marshal"
	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

var tracer = otel.Tracer("hookhost/hook")

// DefaultHandlerBudget bounds a single handler call unless overridden.
const DefaultHandlerBudget = 5 * time.Second

// Invoker runs a handler call inside the owner script's execution context.
type Invoker interface {
	Enter(ctx context.Context, owner script.ID, fn func(context.Context) error) error
}

type directInvoker struct{}

func (directInvoker) Enter(ctx context.Context, _ script.ID, fn func(context.Context) error) error {
	return fn(ctx)
}

// FormatLookup resolves the argument format of an event.
type FormatLookup func(name string) (marshal.Format, bool)

func catalogFormat(name string) (marshal.Format, bool) {
	spec, ok := event.Lookup(name)
	return spec.Format, ok
}

// Fault describes a handler failure contained by the dispatcher.
type Fault struct {
	Event      string
	ScriptID   script.ID
	ScriptName string
	DispatchID ulid.ULID
	Err        error
}

// FaultObserver is notified of every contained handler fault.
type FaultObserver func(Fault)

// Result summarizes one dispatch.
type Result struct {
	DispatchID ulid.ULID
	Stopped    bool
	StoppedBy  script.ID
	Invoked    int
	Faults     int
}

// Continue returns the host-facing code: 1 to continue, 0 to stop.
func (r Result) Continue() int {
	if r.Stopped {
		return 0
	}
	return 1
}

// Dispatcher invokes an event's handlers in priority order.
type Dispatcher struct {
	registry *Registry
	invoker  Invoker
	formats  FormatLookup
	budget   time.Duration
	observer FaultObserver
	logger   *slog.Logger
	stats    *statsTable
}

// DispatcherOption configures a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithInvoker routes every handler call through inv.
func WithInvoker(inv Invoker) DispatcherOption {
	return func(d *Dispatcher) {
		if inv != nil {
			d.invoker = inv
		}
	}
}

// WithHandlerBudget bounds each handler call by d. Zero disables the bound.
func WithHandlerBudget(budget time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.budget = budget
	}
}

// WithFaultObserver registers fn to be told about contained faults.
func WithFaultObserver(fn FaultObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = fn
	}
}

// WithFormats replaces the event catalog used for argument validation.
func WithFormats(lookup FormatLookup) DispatcherOption {
	return func(d *Dispatcher) {
		if lookup != nil {
			d.formats = lookup
		}
	}
}

// WithLogger sets the logger for fault records.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	d := &Dispatcher{
		registry: registry,
		invoker:  directInvoker{},
		formats:  catalogFormat,
		budget:   DefaultHandlerBudget,
		logger:   slog.Default(),
		stats:    newStatsTable(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch delivers args to every enabled handler of name until one asks to
// stop. Handler faults are contained and never abort the chain. An error is
// returned only when the dispatch itself is rejected.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args *marshal.CallArgs) (res Result, err error) {
	if format, ok := d.formats(name); ok {
		if verr := marshal.Validate(args, format); verr != nil {
			recordDispatch(name, OutcomeRejected)
			return Result{}, oops.In("hook").
				With("event", name).
				With("operation", "dispatch").
				Wrap(verr)
		}
	} else if !d.registry.Has(name) {
		recordDispatch(name, OutcomeRejected)
		return Result{}, event.ErrUnknownEvent(name)
	}

	view := d.registry.HandlersFor(name)
	res.DispatchID = ulid.Make()

	ctx, span := tracer.Start(ctx, "hook.dispatch",
		trace.WithAttributes(
			attribute.String("hook.event", name),
			attribute.String("hook.dispatch_id", res.DispatchID.String()),
		),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("hook.invoked", res.Invoked),
			attribute.Int("hook.faults", res.Faults),
			attribute.Bool("hook.stopped", res.Stopped),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for entry := range view.All() {
		if cerr := ctx.Err(); cerr != nil {
			err = oops.In("hook").With("event", name).With("dispatch_id", res.DispatchID.String()).Wrap(cerr)
			break
		}

		stop, fault := d.call(ctx, entry, args, res.DispatchID)
		res.Invoked++
		if fault != nil {
			res.Faults++
			continue
		}
		if stop {
			res.Stopped = true
			res.StoppedBy = entry.ScriptID
			break
		}
	}

	d.stats.add(name, res.Invoked, res.Faults, res.Stopped)
	if res.Stopped {
		recordDispatch(name, OutcomeStopped)
	} else {
		recordDispatch(name, OutcomeContinued)
	}
	return res, err
}

// call runs one handler and contains any failure it produces.
func (d *Dispatcher) call(ctx context.Context, entry Entry, args *marshal.CallArgs, dispatchID ulid.ULID) (stop bool, fault error) {
	start := time.Now()
	entry.counters.calls.Add(1)

	hctx := ctx
	if d.budget > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.budget)
		defer cancel()
	}

	fault = d.invoker.Enter(hctx, entry.ScriptID, func(ctx context.Context) error {
		ret, err := invokeSafely(ctx, entry.Handler, args)
		defer ret.Free()
		if err != nil {
			return err
		}
		stop = wantsStop(ret)
		return nil
	})

	status := StatusContinue
	switch {
	case fault != nil:
		status = StatusFault
		stop = false
		fault = d.contain(hctx, entry, dispatchID, fault)
	case stop:
		status = StatusStop
	}
	recordCall(entry.Event, status, time.Since(start))
	return stop, fault
}

func (d *Dispatcher) contain(hctx context.Context, entry Entry, dispatchID ulid.ULID, cause error) error {
	entry.counters.errors.Add(1)

	builder := oops.In("hook").
		With("event", entry.Event).
		With("script_id", entry.ScriptID).
		With("script", entry.ScriptName).
		With("dispatch_id", dispatchID.String())
	switch {
	case errutil.HasCode(cause):
	case errors.Is(hctx.Err(), context.DeadlineExceeded):
		builder = builder.Code(CodeHandlerTimeout).With("budget", d.budget.String())
	default:
		builder = builder.Code(CodeHandlerFault)
	}
	err := builder.Wrap(cause)

	errutil.LogError(d.logger, "hook handler failed", err)
	if d.observer != nil {
		d.observer(Fault{
			Event:      entry.Event,
			ScriptID:   entry.ScriptID,
			ScriptName: entry.ScriptName,
			DispatchID: dispatchID,
			Err:        err,
		})
	}
	return err
}

// invokeSafely converts a handler panic into an error at the call boundary.
func invokeSafely(ctx context.Context, h Handler, args *marshal.CallArgs) (ret *marshal.ReturnArgs, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret.Free()
			ret, err = nil, ErrHandlerPanic(r)
		}
	}()
	return h.Invoke(ctx, args)
}

// wantsStop reports whether a handler's return asks to end the chain: a
// first slot of integer or real zero, or boolean false. No slots continues.
func wantsStop(ret marshal.Reader) bool {
	if ret.Len() == 0 {
		return false
	}
	v := ret.Slot(0)
	switch v.Kind() {
	case marshal.KindInteger, marshal.KindReal, marshal.KindBoolean:
		return v.IsZero()
	default:
		return false
	}
}

// Stats returns dispatch counters since start or the last ResetStats, along
// with script counts taken from the registry.
func (d *Dispatcher) Stats() Stats {
	since, events := d.stats.snapshot()
	st := Stats{Since: since, Events: events}
	for _, s := range d.registry.Scripts() {
		st.Scripts.Total++
		if s.Enabled {
			st.Scripts.Active++
		} else {
			st.Scripts.Disabled++
		}
	}
	return st
}

// ResetStats clears the dispatch counters.
func (d *Dispatcher) ResetStats() {
	d.stats.reset()
}
