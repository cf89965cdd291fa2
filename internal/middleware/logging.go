package middleware

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// ResponseWriter wrapper to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// clfTimeFormat is the Common Log Format timestamp layout.
const clfTimeFormat = "02/Jan/2006:15:04:05 -0700"

// LoggingConfig holds configuration for the access log middleware
type LoggingConfig struct {
	// SkipPaths are request paths (exact match) that are never logged.
	SkipPaths []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// Output receives one line per request, with no prefix. Nil means stdout.
	Output io.Writer
}

// DefaultLoggingConfig returns the default configuration: everything but
// /myip is logged.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths: []string{"/myip"},
	}
}

// AccessLogger writes one line per request in the format
//
//	:date[clf] :remote-addr :method :status :response-time ms - :url :res[content-length]
type AccessLogger struct {
	skip       map[string]struct{}
	trustProxy bool
	out        io.Writer
	now        func() time.Time
}

// NewAccessLogger creates an access logger from config.
func NewAccessLogger(config LoggingConfig) *AccessLogger {
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	return &AccessLogger{
		skip:       skip,
		trustProxy: config.TrustProxy,
		out:        out,
		now:        time.Now,
	}
}

// ShouldSkip reports whether requests for path are excluded from the log.
func (l *AccessLogger) ShouldSkip(path string) bool {
	_, ok := l.skip[path]
	return ok
}

// sanitizeLogField removes control characters that could be used for log injection.
// This includes newlines, carriage returns, tabs, null bytes, and ANSI escape sequences.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			// Replace newlines/carriage returns with spaces to prevent log line forging
			b.WriteRune(' ')
		case r == '\x00':
			continue
		case r == '\x1b':
			// Strip ANSI escape character to prevent terminal escape injection
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP access log middleware
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	logger := NewAccessLogger(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger.ShouldSkip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := logger.now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			logger.logRequest(r, wrapped, start, logger.now().Sub(start))
		})
	}
}

// formatLine renders one access log line.
func (l *AccessLogger) formatLine(r *http.Request, rw *responseWriter, start time.Time, duration time.Duration) string {
	contentLength := rw.Header().Get("Content-Length")
	if contentLength == "" {
		contentLength = "-"
	}

	return fmt.Sprintf("%s %s %s %d %.3f ms - %s %s",
		start.Format(clfTimeFormat),
		sanitizeLogField(l.clientIP(r)),
		sanitizeLogField(r.Method),
		rw.statusCode,
		float64(duration.Microseconds())/1000,
		sanitizeLogField(r.URL.RequestURI()),
		sanitizeLogField(contentLength),
	)
}

func (l *AccessLogger) logRequest(r *http.Request, rw *responseWriter, start time.Time, duration time.Duration) {
	line := l.formatLine(r, rw, start, duration)

	// Fields are passed through sanitizeLogField.
	fmt.Fprintln(l.out, line)
}

func (l *AccessLogger) clientIP(r *http.Request) string {
	if l.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "-"
	}
	return r.RemoteAddr
}
