// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deploysentry"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// LogsIngested counts log records accepted past the high-water mark.
	LogsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "logs_total",
			Help:      "Total log records processed past the high-water mark",
		},
	)

	// IncidentsClustered counts clusterer outcomes per error-worthy log.
	IncidentsClustered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "incidents_total",
			Help:      "Error-worthy logs clustered, by outcome (opened or appended)",
		},
		[]string{"outcome"},
	)

	// NotificationsSent counts incident notifications by result.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Incident notifications dispatched, by result",
		},
		[]string{"result"},
	)

	// ApprovalsIssued counts issued approval tokens by action.
	ApprovalsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "issued_total",
			Help:      "Approval tokens issued, by action",
		},
		[]string{"action"},
	)

	// ApprovalRedemptions counts redemption attempts by result.
	ApprovalRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "redemptions_total",
			Help:      "Approval token redemption attempts, by result",
		},
		[]string{"result"},
	)

	// AgentRunDuration tracks the duration of full agent runs.
	AgentRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "run_duration_seconds",
			Help:      "Duration of poll-process-notify agent runs",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
