package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/domain/download"

	"github.com/gorilla/mux"
)

const maxSubmitBody = 64 << 10

type downloadUseCases interface {
	Submit(ctx context.Context, req download.Request) (string, error)
	Status(ctx context.Context, id string) (download.Job, error)
	Artifact(ctx context.Context, id string) (appdownload.Artifact, error)
	List(ctx context.Context) ([]download.Job, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	downloads downloadUseCases
	logger    *slog.Logger
}

// NewHandler wires HTTP handlers with the download use cases.
func NewHandler(downloads downloadUseCases, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{downloads: downloads, logger: logger}
}

type submitRequest struct {
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	AudioOnly *bool  `json:"audioOnly"`
	// audio_only is the field name older clients send.
	LegacyAudioOnly *bool `json:"audio_only"`
}

func (r submitRequest) toDomain() download.Request {
	audio := false
	switch {
	case r.AudioOnly != nil:
		audio = *r.AudioOnly
	case r.LegacyAudioOnly != nil:
		audio = *r.LegacyAudioOnly
	}
	quality := strings.TrimSpace(r.Quality)
	if quality == "" {
		quality = "best"
	}
	return download.Request{URL: r.URL, Quality: quality, AudioOnly: audio}
}

// Submit handles POST /api/downloads.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.downloads.Submit(r.Context(), body.toDomain())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

// Status handles GET /api/downloads/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.downloads.Status(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, download.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"state": "not_found"})
		return
	}
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

// List handles GET /api/downloads.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.downloads.List(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	resp := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobView(job))
	}
	writeJSON(w, http.StatusOK, resp)
}

// File handles GET /api/downloads/{id}/file.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.downloads.Artifact(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, download.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, download.ErrArtifactNotReady):
		writeError(w, http.StatusNotFound, "file not ready")
		return
	case err != nil:
		h.writeFailure(w, r, err)
		return
	}

	serveArtifact(w, r, artifact.Path, artifact.Name)
}

// Delete handles DELETE /api/downloads/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.downloads.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func jobView(job download.Job) map[string]interface{} {
	view := map[string]interface{}{
		"jobId":     job.ID,
		"url":       job.SourceURL,
		"quality":   job.Quality,
		"audioOnly": job.AudioOnly,
		"state":     job.State,
		"progress":  job.Progress,
		"createdAt": job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.Title != "" {
		view["title"] = job.Title
		view["uploader"] = job.Uploader
		view["duration"] = job.Duration
		view["durationText"] = download.FormatDuration(job.Duration)
	}
	if job.ErrorKind != "" {
		view["errorKind"] = job.ErrorKind
		view["errorDetail"] = job.ErrorDetail
	}
	if job.ArtifactName != "" {
		view["fileName"] = job.ArtifactName
	}
	if job.Backend != "" {
		view["backend"] = job.Backend
	}
	if job.MirrorObject != "" {
		view["mirrorObject"] = job.MirrorObject
	}
	if job.FinishedAt != nil {
		view["finishedAt"] = job.FinishedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// statusFor maps application and domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case download.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, download.ErrArtifactNotReady):
		return http.StatusNotFound
	case errors.Is(err, download.ErrJobActive):
		return http.StatusConflict
	case errors.Is(err, appdownload.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
