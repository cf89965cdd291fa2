package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_http_requests_total",
			Help: "Total number of HTTP requests, by method, requested file extension and status",
		},
		[]string{"method", "ext", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "static_server_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "ext"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "static_server_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_pipeline_errors_total",
			Help: "Total number of requests handed to the error stage, by failing stage and kind (error/panic)",
		},
		[]string{"stage", "kind"},
	)

	BodyDecodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_body_decode_total",
			Help: "Total number of request bodies decoded, by format and status",
		},
		[]string{"format", "status"},
	)
)

// Compression metrics
var (
	CompressedResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_compressed_responses_total",
			Help: "Total number of responses compressed, by encoding",
		},
		[]string{"encoding"},
	)

	CompressionSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_compression_skipped_total",
			Help: "Total number of responses not compressed, by reason",
		},
		[]string{"reason"},
	)
)

// Minify metrics
var (
	MinifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_minify_total",
			Help: "Total number of response bodies minified, by content kind and status",
		},
		[]string{"kind", "status"},
	)

	MinifyBytesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_minify_bytes_saved_total",
			Help: "Total number of bytes removed by minification, by content kind",
		},
		[]string{"kind"},
	)

	MinifyCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_minify_cache_hits_total",
			Help: "Total number of minify cache hits",
		},
	)

	MinifyCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_minify_cache_misses_total",
			Help: "Total number of minify cache misses",
		},
	)
)

// Session metrics
var (
	SessionCookiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_session_cookies_total",
			Help: "Total number of incoming session cookies, by outcome (none/valid/rejected)",
		},
		[]string{"outcome"},
	)
)

// Static file metrics
var (
	StaticFilesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_static_files_served_total",
			Help: "Total number of requests answered from the public directory",
		},
	)

	StaticBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "static_server_static_bytes_served_total",
			Help: "Total size in bytes of files answered from the public directory",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "static_server_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds, by operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations, by operation",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_filesystem_retry_attempts_total",
			Help: "Total number of retries after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_filesystem_retry_success_total",
			Help: "Total number of operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "static_server_filesystem_retry_failures_total",
			Help: "Total number of operations that still failed after all retries",
		},
		[]string{"operation"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "static_server_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
