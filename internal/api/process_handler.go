package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/traindeck/traindeck-api/internal/api/shared"
	"github.com/traindeck/traindeck-api/internal/service"
	"github.com/traindeck/traindeck-api/internal/worker"
)

// ProcessHandler serves the internal trigger endpoints: batch processing
// and the retention sweep. Both sit behind the trigger shared secret.
type ProcessHandler struct {
	processor     *worker.Processor
	svc           service.JobService
	retentionDays int
	logger        *slog.Logger
}

// NewProcessHandler creates a ProcessHandler.
func NewProcessHandler(
	processor *worker.Processor,
	svc service.JobService,
	retentionDays int,
	logger *slog.Logger,
) *ProcessHandler {
	return &ProcessHandler{
		processor:     processor,
		svc:           svc,
		retentionDays: retentionDays,
		logger:        logger.With("component", "process_handler"),
	}
}

// Process handles POST /internal/jobs/process. The body is optional and
// informational only.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.JobTypes) > 0 {
		h.logger.InfoContext(r.Context(), "trigger requested specific job types",
			"job_types", req.JobTypes)
	}

	summary, err := h.processor.ProcessBatch(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Processing failed", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// Cleanup handles POST /internal/jobs/cleanup: deletes terminal jobs
// older than the retention window.
func (h *ProcessHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	olderThanDays := req.OlderThanDays
	if olderThanDays <= 0 {
		olderThanDays = h.retentionDays
	}

	deleted, err := h.svc.Cleanup(r.Context(), olderThanDays)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), "Cleanup failed", err)
		return
	}

	h.logger.InfoContext(r.Context(), "retention sweep finished",
		"older_than_days", olderThanDays,
		"deleted", deleted)
	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{DeletedCount: deleted})
}
