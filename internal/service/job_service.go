package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/store"
)

// fallbackErrorMessage replaces empty failure messages so no job ever
// surfaces to a user with a blank error.
const fallbackErrorMessage = "The operation failed for an unknown reason. Please try again."

// JobService is the typed facade over the job store used by handlers,
// the processor and the status observer. Every method surfaces store
// failures to the caller; none assumes partial success.
type JobService interface {
	// CreateJob validates the payload for its type and persists a new
	// pending job.
	CreateJob(
		ctx context.Context,
		userID, orgID uuid.UUID,
		jobType domain.JobType,
		payload json.RawMessage,
		opts ...domain.JobOption,
	) (*domain.Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// ListJobsByUser returns the user's jobs, newest first.
	ListJobsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Job, error)

	// ListJobsByEntity returns jobs linked to a business entity, newest first.
	ListJobsByEntity(ctx context.Context, entityKind, entityID string) ([]*domain.Job, error)

	// ListPendingJobs returns claimable jobs for the processor.
	ListPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	// ClaimJob atomically takes ownership of an eligible job.
	// Returns store.ErrClaimConflict when another invocation got there first.
	ClaimJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// UpdateProgress overwrites the job's advisory progress fields.
	UpdateProgress(ctx context.Context, jobID uuid.UUID, percent int, message string) error

	// CompleteJob records the result and moves the job to completed with
	// progress forced to 100.
	CompleteJob(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error

	// FailJob records the failure payload and moves the job to failed.
	FailJob(ctx context.Context, jobID uuid.UUID, jobErr domain.JobError) error

	// ScheduleRetry parks the job until now+delay and increments its
	// retry count. Returns store.ErrRetryBudgetExhausted when the budget
	// is spent; the caller must FailJob instead.
	ScheduleRetry(ctx context.Context, jobID uuid.UUID, delay time.Duration) error

	// CancelJob cancels a live job. Cancelling a terminal job returns
	// store.ErrTerminalState.
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// Cleanup deletes terminal jobs older than the retention window and
	// returns the number deleted.
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// jobService is the store-backed JobService implementation.
type jobService struct {
	jobStore store.JobStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewJobService creates a new JobService backed by the given store.
func NewJobService(jobStore store.JobStore, logger *slog.Logger) JobService {
	return &jobService{
		jobStore: jobStore,
		logger:   logger.With("component", "job_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *jobService) CreateJob(
	ctx context.Context,
	userID, orgID uuid.UUID,
	jobType domain.JobType,
	payload json.RawMessage,
	opts ...domain.JobOption,
) (*domain.Job, error) {
	if err := domain.ValidatePayload(jobType, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobInput, err)
	}

	job, err := domain.NewJob(userID, orgID, jobType, payload, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobInput, err)
	}

	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return nil, &JobServiceError{
			Operation: "create_job",
			Message:   "failed to persist job",
			Err:       err,
		}
	}

	s.logger.Info("job created",
		"job_id", job.ID,
		"job_type", job.Type,
		"user_id", job.UserID,
		"priority", job.Priority)

	return job, nil
}

func (s *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.jobStore.GetJob(ctx, jobID)
}

func (s *jobService) ListJobsByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.jobStore.ListJobsByUser(ctx, userID, limit)
}

func (s *jobService) ListJobsByEntity(
	ctx context.Context,
	entityKind, entityID string,
) ([]*domain.Job, error) {
	return s.jobStore.ListJobsByEntity(ctx, entityKind, entityID)
}

func (s *jobService) ListPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.jobStore.ListPendingJobs(ctx, limit)
}

func (s *jobService) ClaimJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	return s.jobStore.ClaimJob(ctx, jobID)
}

func (s *jobService) UpdateProgress(
	ctx context.Context,
	jobID uuid.UUID,
	percent int,
	message string,
) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidProgress
	}

	return s.jobStore.UpdateJob(ctx, jobID, store.JobUpdate{
		ProgressPercent: &percent,
		ProgressMessage: &message,
	})
}

func (s *jobService) CompleteJob(
	ctx context.Context,
	jobID uuid.UUID,
	result json.RawMessage,
) error {
	status := domain.JobStatusCompleted
	percent := 100

	err := s.jobStore.UpdateJob(ctx, jobID, store.JobUpdate{
		Status:          &status,
		ProgressPercent: &percent,
		Result:          result,
	})
	if err != nil {
		return err
	}

	s.logger.Info("job completed", "job_id", jobID)
	return nil
}

func (s *jobService) FailJob(ctx context.Context, jobID uuid.UUID, jobErr domain.JobError) error {
	if jobErr.Message == "" {
		jobErr.Message = fallbackErrorMessage
	}
	if jobErr.OccurredAt.IsZero() {
		jobErr.OccurredAt = s.now()
	}

	status := domain.JobStatusFailed
	err := s.jobStore.UpdateJob(ctx, jobID, store.JobUpdate{
		Status:    &status,
		ErrorInfo: &jobErr,
	})
	if err != nil {
		return err
	}

	s.logger.Warn("job failed",
		"job_id", jobID,
		"error_kind", jobErr.Kind,
		"error_message", jobErr.Message)
	return nil
}

func (s *jobService) ScheduleRetry(
	ctx context.Context,
	jobID uuid.UUID,
	delay time.Duration,
) error {
	nextRetryAt := s.now().Add(delay)

	if err := s.jobStore.ScheduleRetry(ctx, jobID, nextRetryAt); err != nil {
		return err
	}

	s.logger.Info("job retry scheduled",
		"job_id", jobID,
		"next_retry_at", nextRetryAt)
	return nil
}

func (s *jobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	if err := s.jobStore.CancelJob(ctx, jobID); err != nil {
		return err
	}

	s.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

func (s *jobService) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("%w: retention window must be positive", ErrInvalidJobInput)
	}

	cutoff := s.now().AddDate(0, 0, -olderThanDays)
	return s.jobStore.DeleteTerminalJobsOlderThan(ctx, cutoff)
}
