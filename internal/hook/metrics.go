// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package hook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookhost/hookhost/internal/event"
)

// Status values for handler call metrics.
const (
	StatusContinue = "continue"
	StatusStop     = "stop"
	StatusFault    = "fault"
)

// Outcome values for dispatch metrics.
const (
	OutcomeContinued = "continued"
	OutcomeStopped   = "stopped"
	OutcomeRejected  = "rejected"
)

// CustomEventLabel is the metric event label for every name outside the
// event catalog. Scripts may dispatch arbitrary names; they share one series.
const CustomEventLabel = "custom"

// HookCalls counts handler invocations.
// Use RegisterMetrics to register this with a Prometheus registry.
var HookCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hookhost_hook_calls_total",
		Help: "Total number of hook handler invocations",
	},
	[]string{"event", "status"},
)

// HookDuration observes handler execution time.
// Use RegisterMetrics to register this with a Prometheus registry.
var HookDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hookhost_hook_duration_seconds",
		Help:    "Hook handler execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"event"},
)

// Dispatches counts event dispatches by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hookhost_dispatch_total",
		Help: "Total number of event dispatches",
	},
	[]string{"event", "outcome"},
)

// RegisterMetrics registers hook package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(HookCalls)
	reg.MustRegister(HookDuration)
	reg.MustRegister(Dispatches)
}

func metricLabel(name string) string {
	if _, ok := event.Lookup(name); ok {
		return name
	}
	return CustomEventLabel
}

func recordCall(name, status string, d time.Duration) {
	label := metricLabel(name)
	HookCalls.WithLabelValues(label, status).Inc()
	HookDuration.WithLabelValues(label).Observe(d.Seconds())
}

func recordDispatch(name, outcome string) {
	Dispatches.WithLabelValues(metricLabel(name), outcome).Inc()
}
