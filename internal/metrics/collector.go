// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector registers and records orchestration metrics. All methods are
// nil-safe so instrumented code never needs to guard.
type Collector struct {
	queriesTotal      *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	tasksTotal        *prometheus.CounterVec
	agentCallDuration *prometheus.HistogramVec
	parallelGroupSize prometheus.Histogram
}

// NewCollector creates a Collector registered on the given registerer under
// the namespace. A nil registerer uses the default registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Orchestration queries processed, by outcome.",
			},
			[]string{"outcome"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of each orchestration phase.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Tasks reaching a terminal status.",
			},
			[]string{"status"},
		),
		agentCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_call_duration_seconds",
				Help:      "Remote agent call round-trip duration, by agent kind.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"agent"},
		),
		parallelGroupSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "parallel_group_size",
				Help:      "Number of tasks packed into each parallel group.",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 13, 21},
			},
		),
	}
}

// RecordQuery counts one processed query by outcome ("success" / "failure").
func (c *Collector) RecordQuery(outcome string) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(outcome).Inc()
}

// ObservePhase records the duration of one orchestration phase.
func (c *Collector) ObservePhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordTask counts one task reaching a terminal status.
func (c *Collector) RecordTask(status string) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(status).Inc()
}

// ObserveAgentCall records the round-trip duration of one remote agent call.
func (c *Collector) ObserveAgentCall(agent string, d time.Duration) {
	if c == nil {
		return
	}
	c.agentCallDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveGroupSize records the size of one dispatched parallel group.
func (c *Collector) ObserveGroupSize(n int) {
	if c == nil {
		return
	}
	c.parallelGroupSize.Observe(float64(n))
}
