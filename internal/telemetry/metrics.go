// Package telemetry provides application-level observability for the Oneira backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<ONR_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds.  It is NOT served by the
// Gin router, so it is never reachable through the public API surface.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Generation job lifecycle counters and queue gauges
//   - Generation engine call latency and webhook delivery counters
//   - Photo upload counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/dreams/:id/generate)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as dream or photo IDs.
//
// # Usage
//
// Import the package and use the exported vars directly:
//
//	telemetry.GenerationJobsTotal.WithLabelValues("failed").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /v1/dreams/:id/generate),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
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

// Generation job lifecycle metrics — recorded by the orchestrator and its workers.
//
// GenerationJobsTotal is a CounterVec with label {status} incremented once per
// terminal transition ("succeeded" or "failed").  Queued/running are tracked by the
// gauges below instead, since they are states rather than events.
//
// Example PromQL queries:
//   - Failure ratio (1 h):   sum(rate(generation_jobs_total{status="failed"}[1h])) / sum(rate(generation_jobs_total[1h]))
//   - Jobs finished per min: sum(rate(generation_jobs_total[5m])) * 60
//
// GenerationQueueDepth is a Gauge holding the number of jobs currently sitting in the
// in-process dispatch queue (enqueued but not yet picked up by a worker).  Sustained
// growth means the worker pool is undersized or the engine is slow.
//
// Example PromQL queries:
//   - Alert on backlog:  generation_queue_depth > 50 for 10m
//
// GenerationQueueDropsTotal counts Trigger calls rejected because the dispatch queue
// was full; every drop corresponds to a job conditionally failed with a queue-full
// error.  Any non-zero rate is worth an alert — clients see those failures.
//
// Example PromQL queries:
//   - Alert expression:  increase(generation_queue_drops_total[10m]) > 0
var (
	GenerationJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_total",
			Help: "Total number of generation jobs reaching a terminal state, by status.",
		},
		[]string{"status"},
	)

	GenerationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_queue_depth",
			Help: "Number of generation jobs waiting in the in-process dispatch queue.",
		},
	)

	GenerationQueueDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_queue_drops_total",
			Help: "Total number of generation jobs rejected because the dispatch queue was full.",
		},
	)
)

// External engine metrics.
//
// EngineCallDuration is a Histogram observing the wall time of each synchronous
// dispatch POST to the generation engine, successful or not.  The engine acknowledges
// quickly (the heavy work happens behind its own queue), so p99 here should stay in
// the low seconds; anything approaching the configured client timeout indicates an
// engine-side incident.
//
// Example PromQL queries:
//   - p95 dispatch latency:  histogram_quantile(0.95, rate(engine_call_duration_seconds_bucket[15m]))
//
// WebhookDeliveriesTotal is a CounterVec with labels {provider, outcome} counting
// inbound webhook deliveries.  provider is "engine" or "payments"; outcome is
// "completed", "failed", "skipped" (duplicate/terminal no-op), or "rejected"
// (bad secret / malformed payload).
//
// Example PromQL queries:
//   - Duplicate delivery rate:  rate(webhook_deliveries_total{outcome="skipped"}[1h])
//   - Auth failures:            increase(webhook_deliveries_total{outcome="rejected"}[15m]) > 0
var (
	EngineCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_call_duration_seconds",
			Help:    "Duration of synchronous dispatch calls to the generation engine.",
			Buckets: prometheus.DefBuckets,
		},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of inbound webhook deliveries, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
)

// PhotoUploadsTotal is a CounterVec with label {kind} ("webcam" or "upload")
// incremented once per successfully stored photo.  Storage or decode failures are not
// counted here; they surface as 4xx/5xx in the HTTP metrics.
//
// Example PromQL queries:
//   - Uploads per day:  sum(increase(photo_uploads_total[24h]))
var PhotoUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "photo_uploads_total",
		Help: "Total number of photos successfully uploaded and stored, by kind.",
	},
	[]string{"kind"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <ONR_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
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
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
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
