package handlers

import (
	"io"
	"net/http"

	"static-server/internal/logging"
	"static-server/internal/pipeline"
)

const (
	notFoundBody    = "<h1>Page not found.</h1>"
	serverErrorBody = "<h1>Error!</h1>"
)

// NotFound answers every request that reached it with 404.
func NotFound(w http.ResponseWriter, _ *http.Request, _ http.Handler) error {
	writeHTML(w, http.StatusNotFound, notFoundBody)
	return nil
}

// ServerError is the pipeline's error stage. It logs err with its stack and
// answers 500, unless a response is already on the wire.
func ServerError(w http.ResponseWriter, r *http.Request, stage string, err error) {
	// %+v prints the stack of pkg/errors values and recovered panics.
	logging.Error("%s %s failed in %s stage: %+v", r.Method, r.URL.Path, stage, err)

	if pipeline.HeadersSent(r) {
		return
	}
	writeHTML(w, http.StatusInternalServerError, serverErrorBody)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Del("Content-Length")
	h.Del("ETag")
	h.Del("Last-Modified")
	h.Del("Cache-Control")
	h.Del("Content-Encoding")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		logging.Debug("failed to write %d response: %v", status, err)
	}
}
