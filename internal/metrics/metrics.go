package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Assignment searches by outcome",
		},
		[]string{"outcome"},
	)

	Conflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_conflicts_total",
			Help: "Commits rejected because of overlapping jobs",
		},
		[]string{"operation"},
	)

	DegradedInputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_degraded_inputs_total",
			Help: "Collaborator calls replaced by neutral defaults",
		},
		[]string{"collaborator"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_events_published_total",
			Help: "Job lifecycle events published on the bus",
		},
		[]string{"type"},
	)

	RebalanceMoves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_rebalance_moves_total",
			Help: "Jobs moved by the workload balancer",
		},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_operation_duration_seconds",
			Help:    "Duration of dispatch operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RelayReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_relay_reconnects_total",
			Help: "Notification channel reconnects by transport",
		},
		[]string{"transport"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Observe records the elapsed time since start for operation. Use with defer.
func Observe(operation string, start time.Time) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
