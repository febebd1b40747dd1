package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"sticker-press/internal/convert"
)

// ListJobs returns all tracked jobs, most recently updated first.
func (h *Handlers) ListJobs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"jobs": h.controller.List(),
	})
}

// GetJob returns one job's current snapshot.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snap, ok := h.controller.Get(id)
	if !ok {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, snap)
}

// CancelJob stops a running conversion.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.controller.Cancel(id); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSONStatus(w, "cancelled")
}

// RetryJob starts a fresh attempt for a finished job.
func (h *Handlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.controller.Retry(id); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSONStatus(w, "retrying")
}

// ResetJob returns a job to idle and releases its result.
func (h *Handlers) ResetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.controller.Reset(id); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSONStatus(w, "reset")
}

// writeJobError maps controller errors to HTTP status codes.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, convert.ErrJobNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, convert.ErrNotRunning), errors.Is(err, convert.ErrAlreadyRunning):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
