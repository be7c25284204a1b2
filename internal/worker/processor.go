// Package worker contains the stateless batch processor. It holds no
// loop and no timer of its own: each invocation of ProcessBatch claims
// and drains one batch of eligible jobs, then returns. Scheduling is the
// caller's concern (an external cron hitting the trigger endpoint).
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/service"
	"github.com/traindeck/traindeck-api/internal/store"
)

// defaultBatchSize bounds one invocation when config carries no value.
const defaultBatchSize = 20

// JobFailure describes one job that did not complete during a batch.
type JobFailure struct {
	JobID   uuid.UUID `json:"jobId"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Retried bool      `json:"retried"`
}

// Summary reports the outcome of one ProcessBatch invocation.
type Summary struct {
	// ProcessedCount is the number of jobs this invocation claimed and ran.
	ProcessedCount int `json:"processedCount"`
	// ProcessedJobs lists the IDs of the jobs this invocation ran.
	ProcessedJobs []uuid.UUID `json:"processedJobs"`
	// Errors lists per-job failures; a failed job never aborts the batch.
	Errors []JobFailure `json:"errors,omitempty"`
}

// Processor claims eligible jobs and dispatches them to executors.
type Processor struct {
	svc      service.JobService
	registry *executor.Registry
	cfg      config.ProcessorConfig
	logger   *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(
	svc service.JobService,
	registry *executor.Registry,
	cfg config.ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		svc:      svc,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "processor"),
	}
}

// ProcessBatch lists eligible jobs, claims each one and runs it to an
// outcome: completed, scheduled for retry, or failed. A claim conflict
// means another invocation owns the job and is silently skipped.
func (p *Processor) ProcessBatch(ctx context.Context) (*Summary, error) {
	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	jobs, err := p.svc.ListPendingJobs(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	summary := &Summary{ProcessedJobs: []uuid.UUID{}}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			p.logger.WarnContext(ctx, "batch aborted", "reason", err)
			break
		}

		claimed, err := p.svc.ClaimJob(ctx, job.ID)
		if errors.Is(err, store.ErrClaimConflict) {
			p.logger.DebugContext(ctx, "job already claimed, skipping", "job_id", job.ID)
			continue
		}
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to claim job", "job_id", job.ID, "error", err)
			summary.Errors = append(summary.Errors, JobFailure{
				JobID:   job.ID,
				Kind:    executor.KindInternal,
				Message: "failed to claim job",
			})
			continue
		}

		summary.ProcessedCount++
		summary.ProcessedJobs = append(summary.ProcessedJobs, claimed.ID)

		if failure := p.runJob(ctx, claimed); failure != nil {
			summary.Errors = append(summary.Errors, *failure)
		}
	}

	p.logger.InfoContext(ctx, "batch finished",
		"listed", len(jobs),
		"processed", summary.ProcessedCount,
		"failures", len(summary.Errors))
	return summary, nil
}

// runJob executes one claimed job to an outcome. The returned failure is
// nil when the job completed.
func (p *Processor) runJob(ctx context.Context, job *domain.Job) *JobFailure {
	// Outcome writes run detached from the trigger request. If the
	// caller goes away mid-execution, the claimed job must still reach
	// completed, retrying or failed; on the request context those writes
	// would be rejected too and the job would wedge in processing.
	writeCtx := context.WithoutCancel(ctx)

	exec, err := p.registry.Lookup(job.Type)
	if err != nil {
		return p.failJob(writeCtx, job, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, p.timeoutFor(job.Type))
	defer cancel()

	report := func(percent int, message string) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if err := p.svc.UpdateProgress(execCtx, job.ID, percent, message); err != nil {
			p.logger.DebugContext(execCtx, "progress write dropped",
				"job_id", job.ID, "error", err)
		}
	}

	result, execErr := exec.Execute(execCtx, job, report)
	if execErr == nil {
		if err := p.svc.CompleteJob(writeCtx, job.ID, result); err != nil {
			p.logger.ErrorContext(ctx, "failed to record completion",
				"job_id", job.ID, "error", err)
			return &JobFailure{
				JobID:   job.ID,
				Kind:    executor.KindInternal,
				Message: "failed to record completion",
			}
		}
		return nil
	}

	// A timeout is a transient condition like any other provider outage.
	if errors.Is(execErr, context.DeadlineExceeded) {
		execErr = fmt.Errorf("%w: execution timed out: %v", executor.ErrTransient, execErr)
	}

	p.logger.WarnContext(ctx, "job execution failed",
		"job_id", job.ID,
		"job_type", job.Type,
		"kind", executor.Kind(execErr),
		"retry_count", job.RetryCount,
		"error", execErr)

	if executor.IsRetryable(execErr) && job.RetryCount < job.MaxRetries {
		delay := time.Duration(p.cfg.RetryDelayMinutes) * time.Minute
		if delay <= 0 {
			delay = 5 * time.Minute
		}
		err := p.svc.ScheduleRetry(writeCtx, job.ID, delay)
		if err == nil {
			return &JobFailure{
				JobID:   job.ID,
				Kind:    executor.Kind(execErr),
				Message: execErr.Error(),
				Retried: true,
			}
		}
		if !errors.Is(err, store.ErrRetryBudgetExhausted) {
			p.logger.ErrorContext(ctx, "failed to schedule retry",
				"job_id", job.ID, "error", err)
		}
		// Budget spent or the retry write failed: fall through to a
		// terminal failure so the job never wedges in processing.
	}

	return p.failJob(writeCtx, job, execErr)
}

// failJob records a terminal failure and builds the batch failure entry.
func (p *Processor) failJob(ctx context.Context, job *domain.Job, execErr error) *JobFailure {
	jobErr := domain.JobError{
		Message: execErr.Error(),
		Kind:    executor.Kind(execErr),
	}
	if err := p.svc.FailJob(ctx, job.ID, jobErr); err != nil {
		p.logger.ErrorContext(ctx, "failed to record failure",
			"job_id", job.ID, "error", err)
	}
	return &JobFailure{
		JobID:   job.ID,
		Kind:    jobErr.Kind,
		Message: jobErr.Message,
	}
}

// timeoutFor returns the per-type execution ceiling.
func (p *Processor) timeoutFor(jobType domain.JobType) time.Duration {
	seconds := 0
	switch jobType {
	case domain.JobTypeTranscription:
		seconds = p.cfg.TranscriptionTimeoutS
	case domain.JobTypeDocumentGeneration:
		seconds = p.cfg.DocumentGenTimeoutS
	case domain.JobTypeMediaUpload:
		seconds = p.cfg.MediaUploadTimeoutS
	case domain.JobTypeSpeechSynthesis:
		seconds = p.cfg.SpeechSynthesisTimeoutS
	case domain.JobTypeAnswerEvaluation:
		seconds = p.cfg.AnswerEvaluationTimeoutS
	}
	if seconds <= 0 {
		seconds = 120
	}
	return time.Duration(seconds) * time.Second
}
