package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"sticker-press/internal/convert"
	"sticker-press/internal/logging"
	"sticker-press/internal/sticker"
	"sticker-press/internal/validate"
)

// maxFormMemory bounds how much of a multipart upload is held in memory
// before spilling to disk.
const maxFormMemory = 10 << 20

// ConvertResponse is returned when a conversion job is accepted.
type ConvertResponse struct {
	Job       convert.Snapshot `json:"job"`
	StatusURL string           `json:"statusUrl"`
	EventsURL string           `json:"eventsUrl"`
}

// ValidationErrorResponse is returned when an upload fails validation.
type ValidationErrorResponse struct {
	Error    string   `json:"error"`
	Failures []string `json:"failures"`
}

// StartConversion accepts a multipart upload and starts a conversion job.
// The response is 202 Accepted with the job's initial snapshot; progress is
// delivered over the job WebSocket or by polling the job endpoint.
func (h *Handlers) StartConversion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.engine.Available(ctx); err != nil {
		logging.Warn("Conversion refused, engine unavailable: %v", err)
		writeJSONError(w, "conversion engine unavailable", http.StatusServiceUnavailable)
		return
	}

	device := sticker.ParseDevice(r.FormValue("device"))

	// Cap the request body slightly above the device ceiling so oversized
	// uploads fail fast instead of streaming to completion.
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBytes(device)+maxFormMemory)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeJSONError(w, "failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeJSONError(w, "missing video file in upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	info := validate.FileInfo{
		Name:     header.Filename,
		Size:     header.Size,
		MimeType: mimeType,
	}

	if failures := validate.Check(info, device, h.limits); len(failures) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, ValidationErrorResponse{
			Error:    "upload rejected",
			Failures: failures,
		})
		return
	}

	lastModified, _ := strconv.ParseInt(r.FormValue("lastModified"), 10, 64)

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		logging.Error("failed to save upload: %v", err)
		writeJSONError(w, "failed to save upload", http.StatusInternalServerError)
		return
	}

	src := convert.Source{
		Name:         header.Filename,
		Size:         header.Size,
		LastModified: lastModified,
		MimeType:     mimeType,
		Path:         path,
		Warning:      h.probeWarning(ctx, path),
	}

	snap := h.controller.StartJob(src)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, ConvertResponse{
		Job:       snap,
		StatusURL: "/api/jobs/" + snap.ID,
		EventsURL: "/ws/jobs/" + snap.ID,
	})
}

// saveUpload copies the uploaded file into the upload directory under a
// unique name so concurrent uploads of the same filename cannot collide.
func (h *Handlers) saveUpload(file io.Reader, name string) (string, error) {
	base := sticker.SanitizeName(name)
	if base == "" {
		base = "upload"
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+"-"+base)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	_, err = io.Copy(f, file)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	return path, nil
}

// probeWarning probes the saved upload for a duration warning. Probe
// failures are ignored here; the conversion itself will surface them.
func (h *Handlers) probeWarning(ctx context.Context, path string) string {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := h.engine.ProbeFile(probeCtx, path)
	if err != nil {
		logging.Debug("upload probe failed for %s: %v", path, err)
		return ""
	}
	return validate.DurationWarning(info.Duration)
}
