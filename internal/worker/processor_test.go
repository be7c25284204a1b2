package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/mocks"
	"github.com/traindeck/traindeck-api/internal/service"
	"github.com/traindeck/traindeck-api/internal/store"
)

// scriptedExecutor returns a fixed result or error and records the jobs
// it ran.
type scriptedExecutor struct {
	jobType domain.JobType
	result  json.RawMessage
	err     error
	ran     []uuid.UUID
}

func (e *scriptedExecutor) Type() domain.JobType { return e.jobType }

func (e *scriptedExecutor) Execute(
	_ context.Context,
	job *domain.Job,
	report executor.ProgressFunc,
) (json.RawMessage, error) {
	e.ran = append(e.ran, job.ID)
	report(50, "halfway")
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type fixture struct {
	store     *mocks.MemoryJobStore
	svc       service.JobService
	registry  *executor.Registry
	processor *Processor
}

func newFixture(t *testing.T, execs ...executor.Executor) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobStore := mocks.NewMemoryJobStore()
	svc := service.NewJobService(jobStore, logger)

	registry := executor.NewRegistry()
	for _, e := range execs {
		require.NoError(t, registry.Register(e))
	}

	cfg := config.ProcessorConfig{
		BatchSize:         10,
		RetryDelayMinutes: 5,
	}
	return &fixture{
		store:     jobStore,
		svc:       svc,
		registry:  registry,
		processor: NewProcessor(svc, registry, cfg, logger),
	}
}

func (f *fixture) createJob(
	t *testing.T,
	jobType domain.JobType,
	payload string,
	opts ...domain.JobOption,
) *domain.Job {
	t.Helper()
	job, err := f.svc.CreateJob(context.Background(),
		uuid.New(), uuid.New(), jobType, json.RawMessage(payload), opts...)
	require.NoError(t, err)
	return job
}

func TestProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("completes_eligible_jobs", func(t *testing.T) {
		t.Parallel()

		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			result:  json.RawMessage(`{"transcript":"done"}`),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.ProcessedCount)
		assert.Equal(t, []uuid.UUID{job.ID}, summary.ProcessedJobs)
		assert.Empty(t, summary.Errors)

		stored := f.store.Snapshot(job.ID)
		require.NotNil(t, stored)
		assert.Equal(t, domain.JobStatusCompleted, stored.Status)
		assert.Equal(t, 100, stored.ProgressPercent)
		assert.JSONEq(t, `{"transcript":"done"}`, string(stored.Result))
		assert.NotNil(t, stored.CompletedAt)
	})

	t.Run("empty_queue_is_a_noop", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, summary.ProcessedCount)
		assert.Empty(t, summary.ProcessedJobs)
	})

	t.Run("transient_failure_schedules_retry", func(t *testing.T) {
		t.Parallel()

		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			err:     fmt.Errorf("%w: provider 503", executor.ErrTransient),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)

		require.Len(t, summary.Errors, 1)
		assert.True(t, summary.Errors[0].Retried)
		assert.Equal(t, executor.KindTransient, summary.Errors[0].Kind)

		stored := f.store.Snapshot(job.ID)
		assert.Equal(t, domain.JobStatusRetrying, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		require.NotNil(t, stored.NextRetryAt)
		assert.True(t, stored.NextRetryAt.After(time.Now()))
	})

	t.Run("retry_budget_exhaustion_fails_job", func(t *testing.T) {
		t.Parallel()

		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			err:     fmt.Errorf("%w: provider 503", executor.ErrTransient),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription,
			`{"audio_url":"https://a/b.mp3"}`, domain.WithMaxRetries(1))

		// First run: attempt fails, retry scheduled.
		_, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRetrying, f.store.Snapshot(job.ID).Status)

		// Make the parked retry immediately eligible.
		f.store.SetNow(func() time.Time { return time.Now().UTC().Add(time.Hour) })

		// Second run: attempt fails with the budget spent, so the job
		// fails terminally.
		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)
		assert.False(t, summary.Errors[0].Retried)

		stored := f.store.Snapshot(job.ID)
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		require.NotNil(t, stored.ErrorInfo)
		assert.Equal(t, executor.KindTransient, stored.ErrorInfo.Kind)
	})

	t.Run("non_retryable_failure_is_terminal", func(t *testing.T) {
		t.Parallel()

		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			err:     fmt.Errorf("%w: bad credentials", executor.ErrUnauthorized),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, executor.KindAuth, summary.Errors[0].Kind)

		stored := f.store.Snapshot(job.ID)
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
		assert.Equal(t, 0, stored.RetryCount)
	})

	t.Run("cancelled_trigger_still_parks_the_job", func(t *testing.T) {
		t.Parallel()

		// The trigger client disappears while the executor is running:
		// the batch context is cancelled mid-execution and the store
		// rejects writes on it. The outcome write must land anyway, so
		// the job parks in retrying instead of wedging in processing.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f := newFixture(t)
		exec := &cancellingExecutor{jobType: domain.JobTypeTranscription, cancel: cancel}
		require.NoError(t, f.registry.Register(exec))
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		summary, err := f.processor.ProcessBatch(ctx)
		require.NoError(t, err)

		require.Len(t, summary.Errors, 1)
		assert.True(t, summary.Errors[0].Retried)
		assert.Equal(t, executor.KindCancelled, summary.Errors[0].Kind)

		stored := f.store.Snapshot(job.ID)
		require.NotNil(t, stored)
		assert.Equal(t, domain.JobStatusRetrying, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
	})

	t.Run("conflicting_claim_is_skipped", func(t *testing.T) {
		t.Parallel()

		// Another trigger invocation claims the job between this batch's
		// list and its claim. The conflict is a silent skip: no summary
		// entry, no executor run, and the job stays untouched for the
		// invocation that won.
		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			result:  json.RawMessage(`{"transcript":"done"}`),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		f.store.FailOn["claim"] = store.ErrClaimConflict
		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 0, summary.ProcessedCount)
		assert.Empty(t, summary.ProcessedJobs)
		assert.Empty(t, summary.Errors)
		assert.Empty(t, exec.ran)
		assert.Equal(t, domain.JobStatusPending, f.store.Snapshot(job.ID).Status)

		// Once the contention clears, a later invocation processes the
		// job exactly once.
		delete(f.store.FailOn, "claim")
		summary, err = f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ProcessedCount)
		assert.Equal(t, []uuid.UUID{job.ID}, exec.ran)
		assert.Equal(t, domain.JobStatusCompleted, f.store.Snapshot(job.ID).Status)
	})

	t.Run("cancelled_job_not_claimed", func(t *testing.T) {
		t.Parallel()

		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			result:  json.RawMessage(`{}`),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)
		require.NoError(t, f.svc.CancelJob(context.Background(), job.ID))

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, summary.ProcessedCount)
		assert.Empty(t, exec.ran)
		assert.Equal(t, domain.JobStatusCancelled, f.store.Snapshot(job.ID).Status)
	})

	t.Run("one_failure_never_aborts_the_batch", func(t *testing.T) {
		t.Parallel()

		failing := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			err:     fmt.Errorf("%w: missing audio", executor.ErrNotFound),
		}
		succeeding := &scriptedExecutor{
			jobType: domain.JobTypeSpeechSynthesis,
			result:  json.RawMessage(`{"audio_url":"u"}`),
		}
		f := newFixture(t, failing, succeeding)
		bad := f.createJob(t, domain.JobTypeTranscription,
			`{"audio_url":"https://a/b.mp3"}`, domain.WithPriority(1))
		good := f.createJob(t, domain.JobTypeSpeechSynthesis,
			`{"text":"hello"}`, domain.WithPriority(2))

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, summary.ProcessedCount)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, bad.ID, summary.Errors[0].JobID)
		assert.Equal(t, domain.JobStatusFailed, f.store.Snapshot(bad.ID).Status)
		assert.Equal(t, domain.JobStatusCompleted, f.store.Snapshot(good.ID).Status)
	})

	t.Run("unregistered_job_type_fails_job", func(t *testing.T) {
		t.Parallel()

		// Registry only knows synthesis; the queue holds a transcription.
		exec := &scriptedExecutor{
			jobType: domain.JobTypeSpeechSynthesis,
			result:  json.RawMessage(`{}`),
		}
		f := newFixture(t, exec)
		job := f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)

		stored := f.store.Snapshot(job.ID)
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
	})

	t.Run("priority_orders_the_batch", func(t *testing.T) {
		t.Parallel()

		exec := &scriptedExecutor{
			jobType: domain.JobTypeTranscription,
			result:  json.RawMessage(`{}`),
		}
		f := newFixture(t, exec)
		low := f.createJob(t, domain.JobTypeTranscription,
			`{"audio_url":"https://a/1.mp3"}`, domain.WithPriority(200))
		high := f.createJob(t, domain.JobTypeTranscription,
			`{"audio_url":"https://a/2.mp3"}`, domain.WithPriority(1))

		summary, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, summary.ProcessedCount)
		assert.Equal(t, []uuid.UUID{high.ID, low.ID}, summary.ProcessedJobs)
	})

	t.Run("progress_written_during_execution", func(t *testing.T) {
		t.Parallel()

		// An executor that checks its own progress write landed.
		f := newFixture(t)
		var observed int
		probe := &probeExecutor{
			jobType: domain.JobTypeTranscription,
			onRun: func(jobID uuid.UUID, report executor.ProgressFunc) {
				report(42, "checking in")
				if s := f.store.Snapshot(jobID); s != nil {
					observed = s.ProgressPercent
				}
			},
		}
		require.NoError(t, f.registry.Register(probe))
		f.createJob(t, domain.JobTypeTranscription, `{"audio_url":"https://a/b.mp3"}`)

		_, err := f.processor.ProcessBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, observed)
	})
}

// cancellingExecutor cancels the batch context mid-run, simulating the
// trigger client going away while work is in flight.
type cancellingExecutor struct {
	jobType domain.JobType
	cancel  context.CancelFunc
}

func (e *cancellingExecutor) Type() domain.JobType { return e.jobType }

func (e *cancellingExecutor) Execute(
	ctx context.Context,
	_ *domain.Job,
	_ executor.ProgressFunc,
) (json.RawMessage, error) {
	e.cancel()
	return nil, ctx.Err()
}

// probeExecutor runs a callback with the claimed job's ID and the
// progress reporter.
type probeExecutor struct {
	jobType domain.JobType
	onRun   func(jobID uuid.UUID, report executor.ProgressFunc)
}

func (e *probeExecutor) Type() domain.JobType { return e.jobType }

func (e *probeExecutor) Execute(
	_ context.Context,
	job *domain.Job,
	report executor.ProgressFunc,
) (json.RawMessage, error) {
	e.onRun(job.ID, report)
	return json.RawMessage(`{}`), nil
}
