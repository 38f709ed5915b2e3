// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package execctx

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeRan       = "ran"
	outcomeFailed    = "failed"
	outcomeDiscarded = "discarded"
	outcomeTimeout   = "timeout"
)

var queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "hookhost_background_queue_depth",
	Help: "Number of background work items waiting for the sequencing thread",
})

var workItems = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hookhost_background_work_total",
		Help: "Total number of drained background work items",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers execctx metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(queueDepth)
	reg.MustRegister(workItems)
}

func recordWork(outcome string) {
	workItems.WithLabelValues(outcome).Inc()
}
