// Package store provides abstractions and implementations for data persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// JobUpdate is a merge-patch applied to a job row. Nil fields are left
// untouched. Progress fields are always overwritten when set; all other
// fields only accumulate and are never un-set once present.
type JobUpdate struct {
	Status          *domain.JobStatus
	ProgressPercent *int
	ProgressMessage *string
	Result          json.RawMessage
	ErrorInfo       *domain.JobError
}

// JobStore defines the interface for persisting jobs. It is the only
// shared mutable state in the job subsystem; everything above it is
// stateless.
type JobStore interface {
	// CreateJob persists a new pending job.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by its ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// ListJobsByUser retrieves the user's jobs ordered newest-first,
	// capped at limit.
	ListJobsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Job, error)

	// ListJobsByEntity retrieves jobs linked to a business entity,
	// ordered newest-first.
	ListJobsByEntity(ctx context.Context, entityKind, entityID string) ([]*domain.Job, error)

	// ListPendingJobs retrieves claimable jobs: pending, or retrying with
	// next_retry_at at or before now. Ordered by (priority asc, created_at asc)
	// and capped at limit.
	ListPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	// ClaimJob atomically transitions an eligible job to processing and
	// returns the updated row. Returns ErrClaimConflict if the job is no
	// longer eligible, which callers must treat as "someone else took it".
	ClaimJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// UpdateJob applies a merge-patch to a job.
	// Returns ErrJobNotFound if the job does not exist and ErrTerminalState
	// if the job has already reached a terminal status.
	UpdateJob(ctx context.Context, jobID uuid.UUID, update JobUpdate) error

	// ScheduleRetry increments retry_count, sets status to retrying and
	// records the next eligible claim time. Returns ErrRetryBudgetExhausted
	// if the increment would exceed max_retries.
	ScheduleRetry(ctx context.Context, jobID uuid.UUID, nextRetryAt time.Time) error

	// CancelJob sets status to cancelled if the job is pending, processing
	// or retrying. Returns ErrTerminalState otherwise.
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// DeleteTerminalJobsOlderThan purges terminal jobs whose completion
	// predates the cutoff. Returns the number of rows deleted.
	DeleteTerminalJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) JobStore
}
