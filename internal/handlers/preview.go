package handlers

import (
	"bytes"
	"image/png"
	"net/http"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"

	"sticker-press/internal/logging"
)

// previewSize is the bounding box for preview thumbnails.
const previewSize = 256

// Preview serves a downscaled first frame of a job's source clip as PNG.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	path, ok := h.controller.SourcePath(id)
	if !ok {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeJSONError(w, "source file no longer available", http.StatusGone)
		return
	}

	frame, err := h.engine.Poster(r.Context(), path)
	if err != nil {
		logging.Warn("preview extraction failed for job %s: %v", id, err)
		writeJSONError(w, "failed to extract preview frame", http.StatusInternalServerError)
		return
	}

	img, err := png.Decode(bytes.NewReader(frame))
	if err != nil {
		writeJSONError(w, "failed to decode preview frame", http.StatusInternalServerError)
		return
	}

	thumb := imaging.Fit(img, previewSize, previewSize, imaging.Lanczos)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=60")
	if err := imaging.Encode(w, thumb, imaging.PNG); err != nil {
		logging.Debug("failed to write preview for job %s: %v", id, err)
	}
}
