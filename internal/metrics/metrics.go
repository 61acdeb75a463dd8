// Package metrics provides Prometheus metrics for ShipSentry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "shipsentry"
)

// Alert ingestion metrics
var (
	// AlertsIngestedTotal counts admitted alerts by type and severity.
	AlertsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "ingested_total",
			Help:      "Total number of alerts admitted as new records",
		},
		[]string{"type", "severity"},
	)

	// AlertsSuppressedTotal counts candidates merged into an open alert.
	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total number of duplicate alerts merged by suppression",
		},
		[]string{"type"},
	)

	// AlertTransitionsTotal counts lifecycle transitions by target state.
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "transitions_total",
			Help:      "Total number of alert state transitions",
		},
		[]string{"to"},
	)
)

// Escalation metrics
var (
	// EscalationsFiredTotal counts escalations recorded, by level.
	EscalationsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "fired_total",
			Help:      "Total number of escalations recorded",
		},
		[]string{"level"},
	)

	// EscalationsDuplicateTotal counts duplicate fires skipped via the
	// unique-key guard.
	EscalationsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "duplicate_skipped_total",
			Help:      "Total number of escalation fires rejected as duplicates",
		},
	)

	// SweepDuration tracks escalation sweep latency.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "sweep_duration_seconds",
			Help:      "Escalation sweep latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// SweepErrorsTotal counts per-alert evaluation errors during sweeps.
	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "sweep_errors_total",
			Help:      "Total number of per-alert errors during escalation sweeps",
		},
	)
)

// Delivery metrics
var (
	// DeliveriesTotal counts delivery units reaching a terminal status.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "completed_total",
			Help:      "Total number of delivery units completed, by channel and status",
		},
		[]string{"channel", "status"},
	)

	// DeliveryRetriesTotal counts retry attempts by channel.
	DeliveryRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "retries_total",
			Help:      "Total number of delivery retry attempts",
		},
		[]string{"channel"},
	)

	// DeliveryAttemptDuration tracks channel send latency.
	DeliveryAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempt_duration_seconds",
			Help:      "Channel send latency in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// WorkerQueueDepth tracks queued delivery units per channel pool.
	WorkerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "queue_depth",
			Help:      "Number of delivery units waiting in a channel worker pool",
		},
		[]string{"channel"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks currently executing HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts notifications reaching a terminal
	// aggregate status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "completed_total",
			Help:      "Total number of notifications completed, by aggregate status",
		},
		[]string{"status"},
	)
)
