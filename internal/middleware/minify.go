package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"static-server/internal/logging"
	"static-server/internal/metrics"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	minjson "github.com/tdewolff/minify/v2/json"
)

// ContentKind is a minifiable response body type.
type ContentKind int

const (
	// KindNone is any content type that passes through unchanged.
	KindNone ContentKind = iota
	// KindJavaScript matches content types containing "javascript".
	KindJavaScript
	// KindCSS matches content types containing "css".
	KindCSS
	// KindJSON matches content types containing "json".
	KindJSON
)

func (k ContentKind) String() string {
	switch k {
	case KindJavaScript:
		return "javascript"
	case KindCSS:
		return "css"
	case KindJSON:
		return "json"
	default:
		return "none"
	}
}

// kindPatterns is checked in order; the first match wins.
var kindPatterns = []struct {
	kind    ContentKind
	pattern *regexp.Regexp
}{
	{KindJavaScript, regexp.MustCompile(`javascript`)},
	{KindCSS, regexp.MustCompile(`css`)},
	{KindJSON, regexp.MustCompile(`json`)},
}

// ClassifyContentType maps a Content-Type header value to a ContentKind.
func ClassifyContentType(contentType string) ContentKind {
	for _, p := range kindPatterns {
		if p.pattern.MatchString(contentType) {
			return p.kind
		}
	}
	return KindNone
}

// minifiers is the dispatch table from kind to minifier.
var minifiers = map[ContentKind]minify.MinifierFunc{
	KindJavaScript: js.Minify,
	KindCSS:        css.Minify,
	KindJSON:       minjson.Minify,
}

// Failure stages reported in MinifyError.
const (
	StageCompile = "compile"
	StageMinify  = "minify"
)

// MinifyError describes a failed minification.
type MinifyError struct {
	Kind  ContentKind
	Stage string
	Err   error
}

func (e *MinifyError) Error() string {
	return e.Kind.String() + " " + e.Stage + ": " + e.Err.Error()
}

func (e *MinifyError) Unwrap() error {
	return e.Err
}

// positioner is implemented by the parser errors of the minify library;
// a failure carrying a source position happened while parsing the input.
type positioner interface {
	Position() (int, int, string)
}

// MinifyErrorHandler decides the body sent when minification fails.
type MinifyErrorHandler func(err *MinifyError, original []byte) []byte

// DefaultMinifyErrorHandler logs the failure. A compile-stage failure
// yields the error serialized as a JSON string; anything else yields the
// original body.
func DefaultMinifyErrorHandler(err *MinifyError, original []byte) []byte {
	logging.Warn("Minify failed: %v", err)
	if err.Stage == StageCompile {
		serialized, mErr := json.Marshal(err.Err.Error())
		if mErr != nil {
			return original
		}
		return serialized
	}
	return original
}

// MinifyCache memoizes minified output keyed by kind and source hash.
type MinifyCache struct {
	backend *gocache.Cache
}

// NewMinifyCache creates a cache whose entries live for ttl.
func NewMinifyCache(ttl, cleanupInterval time.Duration) *MinifyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}
	return &MinifyCache{backend: gocache.New(ttl, cleanupInterval)}
}

func cacheKey(kind ContentKind, src []byte) string {
	sum := sha256.Sum256(src)
	return kind.String() + ":" + hex.EncodeToString(sum[:])
}

// Get returns cached output for src.
func (c *MinifyCache) Get(kind ContentKind, src []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.backend.Get(cacheKey(kind, src))
	if !ok {
		metrics.MinifyCacheMisses.Inc()
		return nil, false
	}
	metrics.MinifyCacheHits.Inc()
	return v.([]byte), true
}

// Set stores output for src.
func (c *MinifyCache) Set(kind ContentKind, src, out []byte) {
	if c == nil {
		return
	}
	c.backend.SetDefault(cacheKey(kind, src), out)
}

// Len returns the number of cached entries.
func (c *MinifyCache) Len() int {
	if c == nil {
		return 0
	}
	return c.backend.ItemCount()
}

// MinifyConfig holds configuration for the minify middleware
type MinifyConfig struct {
	// Cache is optional; nil disables caching.
	Cache *MinifyCache
	// OnError picks the fallback body. Nil means DefaultMinifyErrorHandler.
	OnError MinifyErrorHandler
}

// DefaultMinifyConfig returns the default configuration: no cache.
func DefaultMinifyConfig() MinifyConfig {
	return MinifyConfig{OnError: DefaultMinifyErrorHandler}
}

// NoMinifyHeader may be set on a response by a downstream handler to opt out
// of minification. It is removed before the response is sent.
const NoMinifyHeader = "X-No-Minify"

// Minifier runs the dispatch table.
type Minifier struct {
	m       *minify.M
	cache   *MinifyCache
	onError MinifyErrorHandler
}

// NewMinifier creates a Minifier from config.
func NewMinifier(config MinifyConfig) *Minifier {
	onError := config.OnError
	if onError == nil {
		onError = DefaultMinifyErrorHandler
	}
	return &Minifier{m: minify.New(), cache: config.Cache, onError: onError}
}

// Minify returns the minified form of src. On failure it returns the body
// chosen by the error handler together with the error.
func (mf *Minifier) Minify(kind ContentKind, src []byte) ([]byte, error) {
	fn, ok := minifiers[kind]
	if !ok {
		return src, nil
	}

	if out, hit := mf.cache.Get(kind, src); hit {
		return out, nil
	}

	// The JSON minifier stops quietly at a truncated document.
	if kind == KindJSON {
		var v any
		if err := json.Unmarshal(src, &v); err != nil {
			return mf.fail(kind, StageCompile, err, src)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	if err := fn(mf.m, &buf, bytes.NewReader(src), nil); err != nil {
		stage := StageMinify
		var pos positioner
		if errors.As(err, &pos) {
			stage = StageCompile
		}
		return mf.fail(kind, stage, err, src)
	}

	out := buf.Bytes()
	metrics.MinifyTotal.WithLabelValues(kind.String(), "success").Inc()
	if saved := len(src) - len(out); saved > 0 {
		metrics.MinifyBytesSaved.WithLabelValues(kind.String()).Add(float64(saved))
	}
	mf.cache.Set(kind, src, out)
	return out, nil
}

func (mf *Minifier) fail(kind ContentKind, stage string, err error, src []byte) ([]byte, error) {
	mErr := &MinifyError{Kind: kind, Stage: stage, Err: err}
	metrics.MinifyTotal.WithLabelValues(kind.String(), stage+"_error").Inc()
	return mf.onError(mErr, src), mErr
}

// minifyResponseWriter buffers minifiable bodies until the handler is done.
type minifyResponseWriter struct {
	http.ResponseWriter
	minifier    *Minifier
	kind        ContentKind
	statusCode  int
	decided     bool
	buffering   bool
	buffer      bytes.Buffer
	passthrough bool
}

func (m *minifyResponseWriter) decide() {
	if m.decided {
		return
	}
	m.decided = true

	h := m.Header()
	optOut := h.Get(NoMinifyHeader) != ""
	h.Del(NoMinifyHeader)

	m.kind = ClassifyContentType(h.Get("Content-Type"))
	m.buffering = !m.passthrough &&
		!optOut &&
		m.kind != KindNone &&
		m.statusCode == http.StatusOK &&
		h.Get("Content-Encoding") == ""
}

func (m *minifyResponseWriter) WriteHeader(code int) {
	if m.decided {
		return
	}
	m.statusCode = code
	m.decide()
	if !m.buffering {
		m.ResponseWriter.WriteHeader(code)
	}
}

func (m *minifyResponseWriter) Write(b []byte) (int, error) {
	if !m.decided {
		m.WriteHeader(http.StatusOK)
	}
	if m.buffering {
		return m.buffer.Write(b)
	}
	return m.ResponseWriter.Write(b)
}

// Flush is a no-op while buffering; the minified body is written at finish.
func (m *minifyResponseWriter) Flush() {
	if m.buffering {
		return
	}
	if f, ok := m.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish minifies the buffered body and writes it out.
func (m *minifyResponseWriter) finish() {
	if !m.buffering {
		return
	}
	m.buffering = false

	out, _ := m.minifier.Minify(m.kind, m.buffer.Bytes())
	m.Header().Set("Content-Length", strconv.Itoa(len(out)))
	m.ResponseWriter.WriteHeader(m.statusCode)
	m.ResponseWriter.Write(out)
}

// Minify returns a middleware that minifies JavaScript, CSS and JSON
// response bodies. It must sit inside the compression middleware so it sees
// uncompressed bytes.
func Minify(config MinifyConfig) func(http.Handler) http.Handler {
	minifier := NewMinifier(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mw := &minifyResponseWriter{
				ResponseWriter: w,
				minifier:       minifier,
				statusCode:     http.StatusOK,
				// HEAD and range responses carry lengths/slices of the original body.
				passthrough: r.Method == http.MethodHead || r.Header.Get("Range") != "",
			}
			defer mw.finish()

			next.ServeHTTP(mw, r)
		})
	}
}
