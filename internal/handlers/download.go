package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"sticker-press/internal/logging"
	"sticker-press/internal/metrics"
	"sticker-press/internal/streaming"
)

// Download serves a published sticker. A well-formed token with no entry
// answers 410 Gone: the URL existed once and was revoked or expired.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	if _, err := uuid.Parse(token); err != nil {
		metrics.DownloadsServed.WithLabelValues("not_found").Inc()
		writeJSONError(w, "invalid download token", http.StatusNotFound)
		return
	}

	entry, ok := h.urls.Get(token)
	if !ok {
		metrics.DownloadsServed.WithLabelValues("gone").Inc()
		writeJSONError(w, "download no longer available", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Bytes)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Filename))
	w.Header().Set("Cache-Control", "no-store")

	err := streaming.StreamWithTimeout(r.Context(), w, bytes.NewReader(entry.Bytes), streaming.DefaultTimeoutWriterConfig())
	if err != nil {
		logging.Debug("download stream ended early for %s: %v", token, err)
		return
	}

	metrics.DownloadsServed.WithLabelValues("ok").Inc()
}
