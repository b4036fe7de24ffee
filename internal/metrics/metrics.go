// Package metrics provides Prometheus instrumentation for the governance service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "governor",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AdmissionDecisionsTotal counts admission verdicts by outcome and denial reason.
	AdmissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "admission_decisions_total",
			Help:      "Total admission decisions by outcome (allowed/denied) and reason.",
		},
		[]string{"outcome", "reason"},
	)

	// AdmissionFailOpenTotal counts decisions that fell back to the fail-open path.
	AdmissionFailOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "admission_fail_open_total",
			Help:      "Total admission decisions resolved by the fail-open fallback.",
		},
	)

	// ActiveIdentities tracks the number of identities currently held in memory.
	ActiveIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "governor",
			Name:      "active_identities",
			Help:      "Number of identities currently tracked.",
		},
	)

	// SuspiciousIdentities tracks identities carrying the suspicious flag.
	SuspiciousIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "governor",
			Name:      "suspicious_identities",
			Help:      "Number of tracked identities flagged suspicious.",
		},
	)

	// CollectiveUsageToday tracks today's collective pool consumption.
	CollectiveUsageToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "governor",
			Name:      "collective_usage_today",
			Help:      "Documents analyzed against the collective pool today.",
		},
	)

	// SweepRunsTotal counts completed maintenance sweeps.
	SweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "sweep_runs_total",
			Help:      "Total completed maintenance sweeps.",
		},
	)

	// SweepEvictionsTotal counts evictions by kind (identity, bucket).
	SweepEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "sweep_evictions_total",
			Help:      "Total entries evicted by the maintenance sweeper, by kind.",
		},
		[]string{"kind"},
	)

	// SweepDuration observes maintenance sweep duration.
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "governor",
			Name:      "sweep_duration_seconds",
			Help:      "Maintenance sweep duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// LedgerWritesTotal counts durable usage-ledger writes by result.
	LedgerWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "ledger_writes_total",
			Help:      "Total usage-ledger writes by result (ok/error).",
		},
		[]string{"result"},
	)

	// ActiveFeedClients tracks connected audit-feed WebSocket clients.
	ActiveFeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "governor",
			Name:      "active_feed_clients",
			Help:      "Number of currently connected audit feed clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "governor", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "governor", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "governor", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdmissionDecisionsTotal,
		AdmissionFailOpenTotal,
		ActiveIdentities,
		SuspiciousIdentities,
		CollectiveUsageToday,
		SweepRunsTotal,
		SweepEvictionsTotal,
		SweepDuration,
		LedgerWritesTotal,
		ActiveFeedClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
