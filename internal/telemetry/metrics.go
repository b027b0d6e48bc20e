// Package telemetry provides application-level observability for Formgate.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server (default port
// 9090, path /metrics). The endpoint is not part of the Gin router, so it is
// unreachable through the public ingress and exempt from rate limiting.
//
// HTTP metrics use c.FullPath() (the route template) rather than the raw URL
// to keep label cardinality bounded; token strings in query parameters never
// become label values.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Access-control metrics.
//
// VerificationsTotal is labelled by outcome: "valid" or one of the denial
// reasons (malformed, expired_claim, not_found, expired, revoked,
// store_unavailable). A sustained rate of store_unavailable outcomes means
// prospects are being denied because the database is down — alert on it.
//
// Example PromQL:
//   - Denial rate:          sum(rate(token_verifications_total{outcome!="valid"}[5m]))
//   - Fail-closed denials:  rate(token_verifications_total{outcome="store_unavailable"}[5m])
var (
	TokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Total number of intake link tokens issued.",
		},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_verifications_total",
			Help: "Total number of token verifications, by outcome.",
		},
		[]string{"outcome"},
	)

	TokensRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tokens_revoked_total",
			Help: "Total number of tokens marked revoked.",
		},
	)
)

// RateLimitDecisionsTotal is labelled by outcome: "allowed", "denied", or
// "fail_open". The fail_open outcome counts requests that were let through
// because the Redis backend was unreachable — the limiter's availability
// trade-off. A nonzero fail_open rate with a healthy Redis is a bug.
var RateLimitDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Total number of rate limit checks, by outcome (allowed, denied, fail_open).",
	},
	[]string{"outcome"},
)

// Audit metrics. AuditWriteFailuresTotal counts storage failures that were
// absorbed instead of being returned to the caller; the audit trail has a gap
// for each increment, so alert on any sustained rate.
var (
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of access log entries recorded, by action.",
		},
		[]string{"action"},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit log writes that failed and were absorbed.",
		},
	)
)

// TokensSweptTotal counts rows deleted by the retention sweeper.
var TokensSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "tokens_swept_total",
		Help: "Total number of expired token rows deleted by the retention sweeper.",
	},
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. Sampled every 30 seconds by StartDBStatsCollector rather
// than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates DBOpenConnections.
// The goroutine exits when the database becomes unreachable, which happens
// automatically on shutdown once main defers db.Close().
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
