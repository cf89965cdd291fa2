package middleware

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"static-server/internal/metrics"
)

// metricsResponseWriter wraps http.ResponseWriter to capture status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are exact paths that should not be recorded
	SkipPaths []string
	// KnownExtensions bounds the ext label; anything else is recorded as "other".
	KnownExtensions []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/myip"},
		KnownExtensions: []string{
			".html", ".htm", ".js", ".mjs", ".css", ".json", ".map",
			".txt", ".xml", ".svg", ".ico", ".png", ".jpg", ".jpeg",
			".gif", ".webp", ".woff", ".woff2", ".ttf", ".pdf",
		},
	}
}

// Metrics returns a middleware that records Prometheus request metrics
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}
	known := make(map[string]struct{}, len(config.KnownExtensions))
	for _, ext := range config.KnownExtensions {
		known[strings.ToLower(ext)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newMetricsResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			ext := extensionLabel(r.URL.Path, known)
			status := strconv.Itoa(wrapped.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, ext, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, ext).Observe(duration)
		})
	}
}

// extensionLabel maps a request path to a bounded label value so that
// arbitrary URLs cannot blow up series cardinality.
func extensionLabel(p string, known map[string]struct{}) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return "/"
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return "none"
	}
	if _, ok := known[ext]; ok {
		return ext
	}
	return "other"
}
