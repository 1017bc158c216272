// Package metrics provides Prometheus metrics for StaleGuard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "staleguard"
)

// Run metrics
var (
	// RunsTotal counts engine runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total notification engine runs",
		},
		[]string{"outcome"},
	)

	// RunDuration tracks full run latency.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Notification run latency in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// DecisionsTotal counts escalation decisions by action.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Total escalation decisions by action",
		},
		[]string{"action"},
	)
)

// Dispatch metrics
var (
	// NotificationsTotal counts dispatch outcomes by class and status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "notifications_total",
			Help:      "Total notification dispatch attempts by class and status",
		},
		[]string{"class", "status"},
	)

	// SendRetriesTotal counts transient-failure retries.
	SendRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_retries_total",
			Help:      "Total send retries after transient transport failures",
		},
	)
)
