package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/platform/logger"
	"github.com/traindeck/traindeck-api/internal/store"
)

// jobColumns is the canonical column list shared by every SELECT and
// every RETURNING clause so scanJob stays in sync with one place.
const jobColumns = `id, user_id, org_id, type, status, priority, payload, result,
	error_info, progress_percent, progress_message, retry_count, max_retries,
	next_retry_at, entity_kind, entity_id, created_at, started_at, completed_at`

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{
		db: db,
	}
}

// WithTx returns a new PostgresJobStore that runs on the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db: tx,
	}
}

// CreateJob persists a new pending job.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (id, user_id, org_id, type, status, priority, payload,
			progress_percent, progress_message, retry_count, max_retries,
			entity_kind, entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.OrgID,
		job.Type,
		job.Status,
		job.Priority,
		[]byte(job.Payload),
		job.ProgressPercent,
		job.ProgressMessage,
		job.RetryCount,
		job.MaxRetries,
		nullString(job.EntityKind),
		nullString(job.EntityID),
		job.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create job",
			"job_id", job.ID,
			"job_type", job.Type,
			"error", err)
		return store.NewStoreError("job", "create", "insert failed", MapError(err))
	}

	return nil
}

// GetJob retrieves a job by ID.
func (s *PostgresJobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError("job", "get", "query failed", MapError(err))
	}

	return job, nil
}

// ListJobsByUser retrieves the user's jobs ordered newest-first.
func (s *PostgresJobStore) ListJobsByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, jobColumns)

	return s.queryJobs(ctx, "list_by_user", query, userID, limit)
}

// ListJobsByEntity retrieves jobs linked to a business entity, newest-first.
func (s *PostgresJobStore) ListJobsByEntity(
	ctx context.Context,
	entityKind, entityID string,
) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at DESC
	`, jobColumns)

	return s.queryJobs(ctx, "list_by_entity", query, entityKind, entityID)
}

// ListPendingJobs retrieves claimable jobs in (priority, created_at) order.
// A retrying job is claimable only once its next_retry_at has passed.
func (s *PostgresJobStore) ListPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = 'pending'
		   OR (status = 'retrying' AND next_retry_at <= now())
		ORDER BY priority ASC, created_at ASC
		LIMIT $1
	`, jobColumns)

	return s.queryJobs(ctx, "list_pending", query, limit)
}

// ClaimJob atomically transitions an eligible job to processing.
// The status guard in the WHERE clause makes the claim a single
// compare-and-set: a concurrent invocation that already claimed the job
// leaves nothing to update here and the caller gets ErrClaimConflict.
func (s *PostgresJobStore) ClaimJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		UPDATE jobs
		SET status = 'processing',
			started_at = now(),
			progress_percent = 0,
			progress_message = ''
		WHERE id = $1
		  AND (status = 'pending'
		   OR (status = 'retrying' AND next_retry_at <= now()))
		RETURNING %s
	`, jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("claim conflict, job no longer eligible", "job_id", jobID)
			return nil, store.ErrClaimConflict
		}
		return nil, store.NewStoreError("job", "claim", "conditional update failed", MapError(err))
	}

	return job, nil
}

// UpdateJob applies a merge-patch to a job. The terminal-state guard is
// part of the statement itself so a stale caller can never resurrect a
// completed, failed or cancelled job.
func (s *PostgresJobStore) UpdateJob(
	ctx context.Context,
	jobID uuid.UUID,
	update store.JobUpdate,
) error {
	log := logger.FromContext(ctx)

	setClauses := make([]string, 0, 6)
	args := make([]any, 0, 7)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil {
		setClauses = append(setClauses, "status = "+arg(*update.Status))
		if domain.IsTerminalStatus(*update.Status) {
			setClauses = append(setClauses, "completed_at = now()")
		}
	}
	if update.ProgressPercent != nil {
		setClauses = append(setClauses, "progress_percent = "+arg(*update.ProgressPercent))
	}
	if update.ProgressMessage != nil {
		setClauses = append(setClauses, "progress_message = "+arg(*update.ProgressMessage))
	}
	if update.Result != nil {
		setClauses = append(setClauses, "result = "+arg([]byte(update.Result)))
	}
	if update.ErrorInfo != nil {
		errJSON, err := json.Marshal(update.ErrorInfo)
		if err != nil {
			return store.NewStoreError("job", "update", "marshal error info", err)
		}
		setClauses = append(setClauses, "error_info = "+arg(errJSON))
	}

	if len(setClauses) == 0 {
		return nil
	}

	query := "UPDATE jobs SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += fmt.Sprintf(
		" WHERE id = %s AND status NOT IN ('completed', 'failed', 'cancelled')",
		arg(jobID),
	)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update job",
			"job_id", jobID,
			"error", err)
		return store.NewStoreError("job", "update", "update failed", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "update", "rows affected", err)
	}

	if rowsAffected == 0 {
		// Distinguish a missing job from a terminal one.
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return store.ErrTerminalState
	}

	return nil
}

// ScheduleRetry increments retry_count and parks the job until nextRetryAt.
// The retry budget guard lives in the WHERE clause: once retry_count has
// reached max_retries the update matches nothing and the caller must fail
// the job instead.
func (s *PostgresJobStore) ScheduleRetry(
	ctx context.Context,
	jobID uuid.UUID,
	nextRetryAt time.Time,
) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = 'retrying',
			retry_count = retry_count + 1,
			next_retry_at = $2,
			progress_percent = 0,
			progress_message = ''
		WHERE id = $1
		  AND status = 'processing'
		  AND retry_count < max_retries
	`

	result, err := s.db.ExecContext(ctx, query, jobID, nextRetryAt)
	if err != nil {
		log.Error("failed to schedule retry",
			"job_id", jobID,
			"error", err)
		return store.NewStoreError("job", "schedule_retry", "update failed", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "schedule_retry", "rows affected", err)
	}

	if rowsAffected == 0 {
		job, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if job.RetryCount >= job.MaxRetries {
			return store.ErrRetryBudgetExhausted
		}
		return store.ErrUpdateFailed
	}

	return nil
}

// CancelJob sets status to cancelled while the job is still live.
// Cancelling a terminal job is an error, never a silent success.
func (s *PostgresJobStore) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = 'cancelled', completed_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'processing', 'retrying')
	`

	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		log.Error("failed to cancel job",
			"job_id", jobID,
			"error", err)
		return store.NewStoreError("job", "cancel", "update failed", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", "cancel", "rows affected", err)
	}

	if rowsAffected == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return store.ErrTerminalState
	}

	return nil
}

// DeleteTerminalJobsOlderThan purges terminal jobs completed before the cutoff.
func (s *PostgresJobStore) DeleteTerminalJobsOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	log := logger.FromContext(ctx)

	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to delete old jobs",
			"cutoff", cutoff,
			"error", err)
		return 0, store.NewStoreError("job", "cleanup", "delete failed", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("job", "cleanup", "rows affected", err)
	}

	log.Info("purged terminal jobs", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

// queryJobs runs a multi-row job query and scans the results.
func (s *PostgresJobStore) queryJobs(
	ctx context.Context,
	operation, query string,
	args ...any,
) ([]*domain.Job, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs",
			"operation", operation,
			"error", err)
		return nil, store.NewStoreError("job", operation, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, store.NewStoreError("job", operation, "scan failed", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("job", operation, "row iteration failed", MapError(err))
	}

	return jobs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one row in jobColumns order into a domain.Job.
func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job             domain.Job
		payload         []byte
		result          []byte
		errorInfo       []byte
		progressMessage sql.NullString
		nextRetryAt     sql.NullTime
		entityKind      sql.NullString
		entityID        sql.NullString
		startedAt       sql.NullTime
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.OrgID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&payload,
		&result,
		&errorInfo,
		&job.ProgressPercent,
		&progressMessage,
		&job.RetryCount,
		&job.MaxRetries,
		&nextRetryAt,
		&entityKind,
		&entityID,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if len(errorInfo) > 0 {
		var jobErr domain.JobError
		if err := json.Unmarshal(errorInfo, &jobErr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job error info: %w", err)
		}
		job.ErrorInfo = &jobErr
	}
	job.ProgressMessage = progressMessage.String
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		job.NextRetryAt = &t
	}
	job.EntityKind = entityKind.String
	job.EntityID = entityID.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
