// Package metrics registers the Prometheus collectors shared by the sync core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	// CacheLookups counts cache reads by result: memory_hit, db_hit, miss, expired.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_cache_lookups_total",
			Help: "Cache reads by result",
		},
		[]string{"result"},
	)

	// CacheOperations counts cache mutations by operation and outcome.
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_cache_operations_total",
			Help: "Cache mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// CacheExpired counts rows removed by the expiry sweep.
	CacheExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldsync_cache_expired_total",
		Help: "Cache rows removed by the expiry sweep",
	})
)

// Sync metrics
var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_sync_runs_total",
			Help: "Sync runs by outcome",
		},
		[]string{"outcome"},
	)

	SyncJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_sync_jobs_total",
			Help: "Queued jobs processed by result",
		},
		[]string{"result"},
	)

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldsync_sync_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: prometheus.DefBuckets,
	})

	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldsync_pending_jobs",
		Help: "Jobs waiting in the offline queue",
	})
)

// Prefetch and upload metrics
var (
	PrefetchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_prefetch_runs_total",
			Help: "Prefetch runs by outcome",
		},
		[]string{"outcome"},
	)

	UploadFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_upload_files_total",
			Help: "Uploaded files by result",
		},
		[]string{"result"},
	)
)

// Remote API metrics
var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_api_requests_total",
			Help: "Remote API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldsync_api_request_duration_seconds",
			Help:    "Remote API call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// Local bridge HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_http_requests_total",
			Help: "Local bridge HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldsync_http_request_duration_seconds",
			Help:    "Local bridge HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Middleware records request count and duration. route resolves the label
// for a request (typically the router pattern) to keep cardinality bounded.
func Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			label := route(r)
			httpRequestsTotal.WithLabelValues(r.Method, label, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
// (needed for websocket hijacking).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
