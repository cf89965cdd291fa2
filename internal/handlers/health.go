package handlers

import (
	"net/http"
	"runtime"
	"time"

	"static-server/internal/filesystem"
	"static-server/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	PublicDir string `json:"publicDir"`
	Error     string `json:"error,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// checkPublicDir reports why the public directory cannot be served from,
// or nil if it can.
func (h *Handlers) checkPublicDir() error {
	info, err := filesystem.StatWithRetry(h.root.Root(), h.retry)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errNotDirectory
	}
	return nil
}

// HealthCheck returns the health status of the service. A missing public
// directory degrades the service but does not stop it.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		PublicDir:    h.root.Root(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if err := h.checkPublicDir(); err != nil {
		response.Status = statusDegraded
		response.Ready = false
		response.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the public directory can be served
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if err := h.checkPublicDir(); err != nil {
		writeJSONError(w, "public directory unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, "ready")
}
