// Package metrics provides Prometheus metrics collection for the secret
// store. It tracks backend operations, latencies, change events, cache
// effectiveness, and purge volume. Labels carry backend and operation names
// only; key names and values never reach a metric.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "lockbox"
)

// LatencyBuckets defines histogram buckets for backend latency metrics (in
// seconds). Local stores answer in microseconds, network stores in tens of
// milliseconds, so the buckets skew low.
var LatencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0,
}

// =============================================================================
// Operation Metrics
// =============================================================================

var (
	// BackendOperations counts backend calls by outcome.
	BackendOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_operations_total",
			Help:      "Total number of backend operations",
		},
		[]string{
			"backend", "operation", "status",
		},
	)

	// BackendFailures counts failed backend calls by error kind.
	BackendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Total number of failed backend operations",
		},
		[]string{
			"backend", "operation", "error_kind",
		},
	)
)

// =============================================================================
// Latency Metrics
// =============================================================================

var (
	// BackendLatency tracks backend call latency.
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backend operation latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{
			"backend", "operation",
		},
	)
)

// =============================================================================
// Change Event Metrics
// =============================================================================

var (
	// ChangeEvents counts published change events by type.
	ChangeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Total number of published change events",
		},
		[]string{"event_type"},
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts reads served from the caching middleware.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cached reads",
		},
		[]string{"backend"},
	)

	// CacheMisses counts reads that fell through to the backend.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"backend"},
	)
)

// =============================================================================
// Purge Metrics
// =============================================================================

var (
	// ClassSweeps counts class sweeps performed by clear operations.
	ClassSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clear_sweeps_total",
			Help:      "Total number of class sweeps performed by clear operations",
		},
		[]string{"backend", "class"},
	)
)

// =============================================================================
// Connection Pool Metrics
// =============================================================================

var (
	// DBConnectionPoolSize tracks SQL backend connection pool state.
	DBConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool_size",
			Help:      "SQL backend connection pool size by state",
		},
		[]string{"state"},
	)
)
