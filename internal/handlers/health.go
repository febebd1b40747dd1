package handlers

import (
	"net/http"
	"runtime"
	"time"

	"sticker-press/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	EngineError string `json:"engineError,omitempty"`

	TrackedJobs  int `json:"trackedJobs"`
	CacheEntries int `json:"cacheEntries"`
	ActiveURLs   int `json:"activeUrls"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	engineErr := h.engine.Available(r.Context())

	response := HealthResponse{
		Ready:        engineErr == nil,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		TrackedJobs:  h.controller.TrackedJobs(),
		CacheEntries: h.cache.Stats().Entries,
		ActiveURLs:   h.urls.Len(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if engineErr == nil {
		response.Status = statusHealthy
	} else {
		response.Status = statusDegraded
		response.EngineError = engineErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")

	// The service can still answer job queries and downloads without the
	// engine, so a missing engine degrades rather than fails health.
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

// ReadinessCheck returns 200 only when conversions can actually run.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.engine.Available(r.Context()); err == nil {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}
