// Package metrics provides Prometheus instrumentation for the repricer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts settled evaluations, partitioned by outcome.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repricer_evaluations_total",
		Help: "Total number of settled evaluations",
	}, []string{"outcome"})

	// EvaluationLatency tracks how long a single batch evaluation takes.
	EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repricer_evaluation_latency_seconds",
		Help:    "Batch evaluation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OutliersSkipped counts offers skipped by outlier detection.
	OutliersSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repricer_outliers_skipped_total",
		Help: "Offers skipped as outliers during evaluation",
	})

	// BatchesIgnored counts offer batches received while no evaluation was armed.
	BatchesIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repricer_batches_ignored_total",
		Help: "Offer batches ignored because the tracker was idle",
	})

	// BatchesDuplicate counts batches dismissed as already-settled replays.
	BatchesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repricer_batches_duplicate_total",
		Help: "Offer batches dismissed as duplicates of a settled batch",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repricer_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repricer_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repricer_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
