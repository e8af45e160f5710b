package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/maauso/video-compiler/internal/compile"
	"github.com/maauso/video-compiler/internal/job"
)

// maxRequestBytes bounds compile request bodies.
const maxRequestBytes = 1 << 20

// CompileService is what the handlers need from the compile service.
type CompileService interface {
	Compile(ctx context.Context, req compile.Request) compile.Response
	GetJob(ctx context.Context, jobID string) (*job.Job, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service CompileService
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service CompileService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service: service,
		logger:  logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Compile handles POST /compile requests. The body may be the bare request
// or an API Gateway style event, exactly as the Lambda entry accepts it.
// The response status mirrors the compile response.
func (h *Handlers) Compile(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		h.logger.Warn("failed to read request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "failed to read request body", "INVALID_BODY")
		return
	}

	req, err := compile.DecodeEvent(raw)
	if err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	resp := h.service.Compile(r.Context(), req)
	writeJSON(w, resp.StatusCode, resp.Body)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
