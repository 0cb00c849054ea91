package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequests counts backend API calls by endpoint and outcome.
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_backend_requests_total",
		Help: "Total backend API requests by endpoint and status class",
	}, []string{"endpoint", "status"})

	// BackendLatency records backend API latency by endpoint.
	BackendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replied_backend_request_latency_seconds",
		Help:    "Backend API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replied_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// OptimisticReverts counts optimistic state rollbacks by action.
	OptimisticReverts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_optimistic_reverts_total",
		Help: "Total optimistic updates reverted after a failed request",
	}, []string{"action"})

	// SessionRedirects counts gate redirects by target.
	SessionRedirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_session_redirects_total",
		Help: "Total page redirects issued by the session gate",
	}, []string{"target"})

	// RealtimeSubscriptions is the gauge of open realtime inbox subscriptions.
	RealtimeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replied_realtime_subscriptions",
		Help: "Number of open realtime inbox subscriptions",
	})

	// WebSocketConnectionsTotal is the gauge of browser WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replied_websocket_connections_total",
		Help: "Total number of active browser WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// ObserveBackend records one backend call.
func ObserveBackend(endpoint string, status int, start time.Time) {
	BackendLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	BackendRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func statusClass(status int) string {
	if status == 0 {
		return "network"
	}
	return strconv.Itoa(status/100) + "xx"
}

// DatabaseMetrics records query latency for the managed database.
type DatabaseMetrics struct{}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics() *DatabaseMetrics {
	return &DatabaseMetrics{}
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
