package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"static-server/internal/metrics"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes is a list of content types that should be compressed.
	// Any text/* type and +json/+xml suffixes are compressible as well.
	CompressibleTypes []string
	// SkipExtensions are URL path suffixes that are never compressed because
	// the payload is already compressed.
	SkipExtensions []string
}

// DefaultCompressionConfig returns sensible defaults for compression
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024, // 1KB minimum
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/html",
			"text/css",
			"text/plain",
			"text/javascript",
			"text/xml",
			"application/json",
			"application/javascript",
			"application/x-javascript",
			"application/xml",
			"application/xhtml+xml",
			"application/rss+xml",
			"application/atom+xml",
			"application/manifest+json",
			"image/svg+xml",
		},
		SkipExtensions: []string{".jpg", ".png"},
	}
}

const (
	encodingGzip    = "gzip"
	encodingDeflate = "deflate"
)

// compressor is satisfied by both gzip.Writer and zlib.Writer.
type compressor interface {
	io.WriteCloser
	Flush() error
	Reset(w io.Writer)
}

// compressorPools holds one writer pool per content-coding.
type compressorPools map[string]*sync.Pool

func newCompressorPools(level int) compressorPools {
	return compressorPools{
		encodingGzip: {New: func() interface{} {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		}},
		encodingDeflate: {New: func() interface{} {
			w, err := zlib.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = zlib.NewWriter(io.Discard)
			}
			return w
		}},
	}
}

// negotiateEncoding picks gzip or deflate from an Accept-Encoding header,
// honoring q-values. gzip wins ties. An empty result means identity.
func negotiateEncoding(header string) string {
	if header == "" {
		return ""
	}

	q := map[string]float64{}
	wildcard := -1.0
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		weight := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || strings.ToLower(strings.TrimSpace(k)) != "q" {
				continue
			}
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				weight = parsed
			}
		}

		if name == "*" {
			wildcard = weight
			continue
		}
		q[name] = weight
	}

	best, bestQ := "", 0.0
	for _, enc := range []string{encodingGzip, encodingDeflate} {
		weight, ok := q[enc]
		if !ok {
			weight = wildcard
		}
		if weight > bestQ {
			best, bestQ = enc, weight
		}
	}
	return best
}

// compressResponseWriter wraps http.ResponseWriter to provide compression
type compressResponseWriter struct {
	http.ResponseWriter
	pools          compressorPools
	encoding       string
	writer         compressor
	config         CompressionConfig
	buffer         []byte
	statusCode     int
	headerWritten  bool
	shouldCompress bool
}

// newCompressResponseWriter creates a new compressing response writer.
// encoding may be empty when the client accepts neither gzip nor deflate;
// the writer then only sets Vary for compressible responses.
func newCompressResponseWriter(w http.ResponseWriter, config CompressionConfig, pools compressorPools, encoding string) *compressResponseWriter {
	return &compressResponseWriter{
		ResponseWriter: w,
		pools:          pools,
		encoding:       encoding,
		config:         config,
		statusCode:     http.StatusOK,
		buffer:         make([]byte, 0, config.MinSize+1),
	}
}

// WriteHeader captures the status code
func (c *compressResponseWriter) WriteHeader(statusCode int) {
	if c.headerWritten {
		return
	}
	c.statusCode = statusCode
	// Bodiless statuses can be decided right away.
	if statusCode == http.StatusNoContent || statusCode == http.StatusNotModified || statusCode < 200 {
		c.finalize()
	}
}

// Write buffers data until we know if we should compress
func (c *compressResponseWriter) Write(data []byte) (int, error) {
	if c.headerWritten {
		if c.writer != nil {
			return c.writer.Write(data)
		}
		return c.ResponseWriter.Write(data)
	}

	c.buffer = append(c.buffer, data...)

	if len(c.buffer) > c.config.MinSize {
		c.finalize()
	}

	return len(data), nil
}

// compressibleContentType checks if the content type should be compressed
func compressibleContentType(contentType string, compressible []string) bool {
	if contentType == "" {
		return false
	}

	// Extract the media type (ignore charset and other parameters)
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))

	if strings.HasPrefix(mediaType, "text/") ||
		strings.HasSuffix(mediaType, "+json") ||
		strings.HasSuffix(mediaType, "+xml") {
		return true
	}

	for _, c := range compressible {
		if mediaType == c {
			return true
		}
	}

	return false
}

// skipReason applies the default heuristic and returns why the buffered
// response must not be compressed, or "" if it may be.
func (c *compressResponseWriter) skipReason() string {
	h := c.Header()
	switch {
	case h.Get("Content-Encoding") != "" && h.Get("Content-Encoding") != "identity":
		return "encoded"
	case strings.Contains(strings.ToLower(h.Get("Cache-Control")), "no-transform"):
		return "no_transform"
	case c.statusCode == http.StatusNoContent || c.statusCode == http.StatusNotModified || c.statusCode < 200:
		return "no_body"
	case !compressibleContentType(h.Get("Content-Type"), c.config.CompressibleTypes):
		return "content_type"
	case len(c.buffer) < c.config.MinSize:
		return "too_small"
	}
	return ""
}

// finalize decides whether to compress and writes the buffered data
func (c *compressResponseWriter) finalize() {
	if c.headerWritten {
		return
	}
	c.headerWritten = true

	reason := c.skipReason()
	if reason == "" {
		c.Header().Add("Vary", "Accept-Encoding")
		if c.encoding == "" {
			reason = "not_accepted"
		}
	}

	if reason != "" {
		if reason != "no_body" {
			metrics.CompressionSkippedTotal.WithLabelValues(reason).Inc()
		}
		c.ResponseWriter.WriteHeader(c.statusCode)
		if len(c.buffer) > 0 {
			c.ResponseWriter.Write(c.buffer)
		}
		c.buffer = nil
		return
	}

	c.shouldCompress = true
	metrics.CompressedResponsesTotal.WithLabelValues(c.encoding).Inc()

	// Remove Content-Length as it will change
	c.Header().Del("Content-Length")
	c.Header().Set("Content-Encoding", c.encoding)

	c.writer = c.pools[c.encoding].Get().(compressor)
	c.writer.Reset(c.ResponseWriter)

	c.ResponseWriter.WriteHeader(c.statusCode)
	c.writer.Write(c.buffer)

	// Clear buffer to free memory
	c.buffer = nil
}

// Close finalizes the response and returns the compressor to its pool
func (c *compressResponseWriter) Close() error {
	if !c.headerWritten {
		c.finalize()
	}

	if c.writer != nil {
		err := c.writer.Close()
		c.pools[c.encoding].Put(c.writer)
		c.writer = nil
		return err
	}

	return nil
}

// Flush implements http.Flusher
func (c *compressResponseWriter) Flush() {
	if !c.headerWritten {
		c.finalize()
	}

	if c.writer != nil {
		c.writer.Flush()
	}

	if flusher, ok := c.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Push implements http.Pusher for HTTP/2 support
func (c *compressResponseWriter) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := c.ResponseWriter.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

// hasSkippedExtension reports whether the URL path ends with one of the
// configured extensions.
func hasSkippedExtension(path string, exts []string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Compression returns a middleware that compresses responses with gzip or
// deflate, as negotiated with the client.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pools := newCompressorPools(config.Level)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Already-compressed formats
			if hasSkippedExtension(r.URL.Path, config.SkipExtensions) {
				metrics.CompressionSkippedTotal.WithLabelValues("extension").Inc()
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			// Skip compression for WebSocket upgrades
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			// Skip compression for Server-Sent Events
			if r.Header.Get("Accept") == "text/event-stream" {
				next.ServeHTTP(w, r)
				return
			}

			cw := newCompressResponseWriter(w, config, pools, negotiateEncoding(r.Header.Get("Accept-Encoding")))
			defer cw.Close()

			next.ServeHTTP(cw, r)
		})
	}
}
