// Package metrics provides Prometheus instrumentation for the static server.
//
// All metrics are prefixed with "static_server_" and registered with the
// default Prometheus registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Pipeline Metrics
//
//   - PipelineErrorsTotal: Requests that reached the error stage, by stage and kind
//   - BodyDecodeTotal: Decoded request bodies by format and status
//   - CompressedResponsesTotal / CompressionSkippedTotal: Compression decisions
//   - MinifyTotal / MinifyBytesSaved: Minification outcomes and savings
//   - MinifyCacheHits / MinifyCacheMisses: Optional minify cache effectiveness
//   - SessionCookiesTotal: Incoming session cookies by outcome (none/valid/rejected)
//   - StaticFilesServed / StaticBytesServed: Public directory hits
//
// ## Filesystem Metrics
//
// Recorded through [NewFilesystemObserver], which implements
// filesystem.Observer so the filesystem package does not import this one:
//
//   - FilesystemOperationDuration / FilesystemOperationErrors
//   - FilesystemRetryAttempts / FilesystemRetrySuccess / FilesystemRetryFailures
//
// # Usage
//
// The metrics are exposed by the admin router on /metrics:
//
//	r.Handle("/metrics", promhttp.Handler())
//
// Error rate:
//
//	sum(rate(static_server_http_requests_total{status=~"5.."}[5m])) / sum(rate(static_server_http_requests_total[5m]))
//
// Rejected session cookies:
//
//	rate(static_server_session_cookies_total{outcome="rejected"}[1h])
package metrics
