// Package api contains the HTTP handlers: the client-facing job
// endpoints and the internal processing trigger.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/api/shared"
	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/service"
)

// JobHandler serves the client-facing job endpoints.
type JobHandler struct {
	svc    service.JobService
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(svc service.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		svc:    svc,
		logger: logger.With("component", "job_handler"),
	}
}

// Create handles POST /api/jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, orgID, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	jobType := domain.JobType(req.Type)
	if !domain.IsValidJobType(jobType) {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Unknown job type %q", req.Type))
		return
	}

	var opts []domain.JobOption
	if req.Priority != nil {
		opts = append(opts, domain.WithPriority(*req.Priority))
	}
	if req.MaxRetries != nil {
		opts = append(opts, domain.WithMaxRetries(*req.MaxRetries))
	}
	if req.EntityKind != "" {
		opts = append(opts, domain.WithEntityRef(req.EntityKind, req.EntityID))
	}

	job, err := h.svc.CreateJob(r.Context(), userID, orgID, jobType, req.Payload, opts...)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewJobResponse(job))
}

// Get handles GET /api/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	job, err := h.fetchOwnedJob(r, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewJobResponse(job))
}

// List handles GET /api/jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	jobs, err := h.svc.ListJobsByUser(r.Context(), userID, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, NewJobResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Cancel handles DELETE /api/jobs/{id}. Cancelling an already-terminal
// job is a conflict, not a success.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	job, err := h.fetchOwnedJob(r, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if err := h.svc.CancelJob(r.Context(), job.ID); err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	updated, err := h.svc.GetJob(r.Context(), job.ID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, NewJobResponse(updated))
}

// fetchOwnedJob loads the path's job and checks the caller owns it.
func (h *JobHandler) fetchOwnedJob(r *http.Request, userID uuid.UUID) (*domain.Job, error) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", service.ErrInvalidJobInput)
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobNotOwned
	}
	return job, nil
}

// callerIdentity pulls the authenticated identity from the context. The
// auth middleware guarantees it; a miss is a server-side wiring bug.
func callerIdentity(w http.ResponseWriter, r *http.Request) (userID, orgID uuid.UUID, ok bool) {
	userID, uok := shared.GetUserID(r.Context())
	orgID, ook := shared.GetOrgID(r.Context())
	if !uok || !ook {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"An unexpected error occurred", errors.New("identity missing from context"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, orgID, true
}
