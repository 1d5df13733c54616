// Package metrics provides Prometheus instrumentation for the escrow
// coordination engine.
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
			Namespace: "skillswap",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skillswap",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PrechecksTotal counts payment prechecks by outcome.
	PrechecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "prechecks_total",
			Help:      "Total payment prechecks by outcome.",
		},
		[]string{"outcome"},
	)

	// TxSubmissionsTotal counts ledger transaction submissions by
	// operation and result.
	TxSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "tx_submissions_total",
			Help:      "Total ledger transaction submissions by operation and result.",
		},
		[]string{"op", "result"},
	)

	// ReconciliationsTotal counts ledger reconciliation passes by result.
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "reconciliations_total",
			Help:      "Total booking reconciliation passes by result.",
		},
		[]string{"result"},
	)

	// RequestIDBackfillsTotal counts request-id recoveries from receipts
	// performed by the background worker.
	RequestIDBackfillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skillswap",
			Name:      "request_id_backfills_total",
			Help:      "Total request-id backfills from receipts by result.",
		},
		[]string{"result"},
	)

	// BookingsTotal counts bookings created.
	BookingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skillswap",
		Name:      "bookings_total",
		Help:      "Total bookings created.",
	})

	// DisputesTotal counts disputes raised.
	DisputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skillswap",
		Name:      "disputes_total",
		Help:      "Total disputes raised.",
	})

	// OverdueReleases tracks bookings whose auto-release deadline has
	// passed without the payment release landing on the ledger.
	OverdueReleases = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap",
		Name:      "overdue_releases",
		Help:      "Bookings past their auto-release deadline with payment still escrowed.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skillswap",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skillswap", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PrechecksTotal,
		TxSubmissionsTotal,
		ReconciliationsTotal,
		RequestIDBackfillsTotal,
		BookingsTotal,
		DisputesTotal,
		OverdueReleases,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
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
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
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
