// Package vectorstore provides Prometheus metrics for the index store.
package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIndexedTotal counts documents successfully bulk-indexed.
	DocumentsIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatindex",
			Subsystem: "indexstore",
			Name:      "documents_indexed_total",
			Help:      "Total number of documents successfully indexed via bulk writes",
		},
	)

	// BulkPartialFailuresTotal counts documents that failed within an
	// otherwise-successful bulk batch (§7's BulkPartialFailure kind).
	BulkPartialFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatindex",
			Subsystem: "indexstore",
			Name:      "bulk_partial_failures_total",
			Help:      "Total number of documents that failed within a bulk index batch",
		},
	)

	// HealthCheckDuration tracks how long health checks take.
	HealthCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatindex",
			Subsystem: "indexstore",
			Name:      "health_check_duration_seconds",
			Help:      "Duration of health check operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// HealthCheckTotal counts health check operations.
	// Labels: result (success, error)
	HealthCheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatindex",
			Subsystem: "indexstore",
			Name:      "health_checks_total",
			Help:      "Total number of health check operations",
		},
		[]string{"result"},
	)

	// HealthStatus indicates current health status (1=healthy, 0=degraded).
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatindex",
			Subsystem: "indexstore",
			Name:      "health_status",
			Help:      "Current health status (1=healthy, 0=degraded)",
		},
	)

	// SearchDuration tracks hybrid/semantic/keyword/image search latency.
	// Labels: kind (hybrid, semantic, keyword, image)
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatindex",
			Subsystem: "indexstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of search operations in seconds, labeled by search kind",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

// RecordHealthCheckResult records the outcome of a health check.
func RecordHealthCheckResult(success bool) {
	if success {
		HealthCheckTotal.WithLabelValues("success").Inc()
		HealthStatus.Set(1)
	} else {
		HealthCheckTotal.WithLabelValues("error").Inc()
		HealthStatus.Set(0)
	}
}
