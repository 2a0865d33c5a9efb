// Package telemetry provides application-level observability for the registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<AGR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server every 15-60 seconds.
// It is NOT served by the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/orgs/:org/agents/:name)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as artifact names or version strings.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and
// buckets from 5 ms to 30 s. Use histogram_quantile to compute latency percentiles.
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

// Artifact metrics.
//
// ArtifactPublishesTotal is a CounterVec with labels {kind, org} incremented on
// every successful version publish.
//
// ArtifactDownloadsTotal is a CounterVec with labels {kind, org} incremented
// whenever a client fetches artifact content or a download URL.
//
// Example PromQL queries:
//   - Publish rate by kind:    sum by (kind) (rate(artifact_publishes_total[1h]))
//   - Most active orgs:        topk(5, sum by (org) (artifact_downloads_total))
var (
	ArtifactPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_publishes_total",
			Help: "Total number of artifact versions published, by kind and organization.",
		},
		[]string{"kind", "org"},
	)

	ArtifactDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_downloads_total",
			Help: "Total number of artifact downloads, by kind and organization.",
		},
		[]string{"kind", "org"},
	)
)

// InvitationEmailsSentTotal is a CounterVec with label {result} ("sent" or
// "failed") incremented per invitation email attempt. A rising "failed" series
// is the primary alert signal for SMTP delivery problems.
var InvitationEmailsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invitation_emails_sent_total",
		Help: "Total number of invitation email delivery attempts, by result.",
	},
	[]string{"result"},
)

// TokenExpiryNotificationsSentTotal is a plain Counter incremented once per
// email successfully delivered by the token expiry notifier background job.
var TokenExpiryNotificationsSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "token_expiry_notifications_sent_total",
		Help: "Total number of token expiry warning emails successfully sent.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
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
