// Package mocks provides shared test doubles used across packages.
package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/store"
)

// MemoryJobStore is a thread-safe in-memory store.JobStore implementation
// that mirrors the Postgres store's semantics: eligibility rules for
// claiming, terminal-state guards, the retry budget check, and rejection
// of writes on a cancelled context. Tests use it wherever exercising
// real SQL is not the point.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
	now  func() time.Time

	// Optional error injection, keyed by operation name
	// ("create", "get", "list_pending", "claim", "update",
	// "schedule_retry", "cancel", "cleanup").
	FailOn map[string]error
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[uuid.UUID]*domain.Job),
		now:    func() time.Time { return time.Now().UTC() },
		FailOn: make(map[string]error),
	}
}

// SetNow overrides the store's clock for retry-eligibility tests.
func (s *MemoryJobStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Snapshot returns a copy of the stored job, or nil if absent.
func (s *MemoryJobStore) Snapshot(jobID uuid.UUID) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		copied := *job
		return &copied
	}
	return nil
}

func (s *MemoryJobStore) injected(op string) error {
	if err, ok := s.FailOn[op]; ok {
		return err
	}
	return nil
}

// guard mirrors the SQL store: a cancelled context rejects the write
// before any injected error is considered.
func (s *MemoryJobStore) guard(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.injected(op)
}

func (s *MemoryJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(ctx, "create"); err != nil {
		return err
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *MemoryJobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("get"); err != nil {
		return nil, err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryJobStore) ListJobsByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Job
	for _, job := range s.jobs {
		if job.UserID == userID {
			copied := *job
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryJobStore) ListJobsByEntity(
	ctx context.Context,
	entityKind, entityID string,
) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Job
	for _, job := range s.jobs {
		if job.EntityKind == entityKind && job.EntityID == entityID {
			copied := *job
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryJobStore) ListPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("list_pending"); err != nil {
		return nil, err
	}
	var result []*domain.Job
	for _, job := range s.jobs {
		if s.claimable(job) {
			copied := *job
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryJobStore) ClaimJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(ctx, "claim"); err != nil {
		return nil, err
	}
	job, ok := s.jobs[jobID]
	if !ok || !s.claimable(job) {
		return nil, store.ErrClaimConflict
	}
	now := s.now()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now
	job.ProgressPercent = 0
	job.ProgressMessage = ""
	copied := *job
	return &copied, nil
}

func (s *MemoryJobStore) UpdateJob(
	ctx context.Context,
	jobID uuid.UUID,
	update store.JobUpdate,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(ctx, "update"); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.IsTerminal() {
		return store.ErrTerminalState
	}
	if update.Status != nil {
		job.Status = *update.Status
		if domain.IsTerminalStatus(*update.Status) {
			now := s.now()
			job.CompletedAt = &now
		}
	}
	if update.ProgressPercent != nil {
		job.ProgressPercent = *update.ProgressPercent
	}
	if update.ProgressMessage != nil {
		job.ProgressMessage = *update.ProgressMessage
	}
	if update.Result != nil {
		job.Result = append(json.RawMessage(nil), update.Result...)
	}
	if update.ErrorInfo != nil {
		copied := *update.ErrorInfo
		job.ErrorInfo = &copied
	}
	return nil
}

func (s *MemoryJobStore) ScheduleRetry(
	ctx context.Context,
	jobID uuid.UUID,
	nextRetryAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(ctx, "schedule_retry"); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return store.ErrUpdateFailed
	}
	if job.RetryCount >= job.MaxRetries {
		return store.ErrRetryBudgetExhausted
	}
	job.RetryCount++
	job.Status = domain.JobStatusRetrying
	job.NextRetryAt = &nextRetryAt
	job.ProgressPercent = 0
	job.ProgressMessage = ""
	return nil
}

func (s *MemoryJobStore) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(ctx, "cancel"); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.IsTerminal() {
		return store.ErrTerminalState
	}
	job.Status = domain.JobStatusCancelled
	now := s.now()
	job.CompletedAt = &now
	return nil
}

func (s *MemoryJobStore) DeleteTerminalJobsOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(ctx, "cleanup"); err != nil {
		return 0, err
	}
	var deleted int64
	for id, job := range s.jobs {
		if job.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return s
}

// claimable mirrors the SQL eligibility predicate. Callers must hold s.mu.
func (s *MemoryJobStore) claimable(job *domain.Job) bool {
	switch job.Status {
	case domain.JobStatusPending:
		return true
	case domain.JobStatusRetrying:
		return job.NextRetryAt != nil && !job.NextRetryAt.After(s.now())
	default:
		return false
	}
}

var _ store.JobStore = (*MemoryJobStore)(nil)
