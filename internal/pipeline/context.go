package pipeline

import (
	"context"
	"net/http"
)

type nextKey struct{}

type trackerKey struct{}

func withNext(r *http.Request, next http.Handler) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), nextKey{}, next))
}

func nextFrom(r *http.Request) http.Handler {
	if h, ok := r.Context().Value(nextKey{}).(http.Handler); ok {
		return h
	}
	return http.HandlerFunc(http.NotFound)
}

// trackingWriter records whether the status line has reached the client's
// writer. It wraps the writer handed to the pipeline, below every stage.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	// 1xx responses are informational and may be followed by the real one.
	if code >= 200 {
		t.wroteHeader = true
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.wroteHeader = true
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

func withTracker(r *http.Request, t *trackingWriter) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), trackerKey{}, t))
}

// HeadersSent reports whether the response status has already been written
// to the connection for r. Error handlers use it to avoid writing a second
// status line. It is false for requests not served by a Pipeline.
func HeadersSent(r *http.Request) bool {
	t, ok := r.Context().Value(trackerKey{}).(*trackingWriter)
	return ok && t.wroteHeader
}
