// Package poll implements client-side job observation. The server keeps
// no push channel; consumers watch a job by polling its status on an
// interval until it reaches a terminal state.
package poll

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/service"
)

// DefaultInterval is the poll cadence when no option overrides it.
const DefaultInterval = 2 * time.Second

// Snapshot is a point-in-time view of a watched job with the status
// booleans consumers branch on.
type Snapshot struct {
	Job             *domain.Job
	IsPending       bool
	IsProcessing    bool
	IsCompleted     bool
	IsFailed        bool
	IsCancelled     bool
	ProgressPercent int
	ProgressMessage string
	Result          json.RawMessage
	Error           *domain.JobError
}

// snapshotOf derives a Snapshot from a job.
func snapshotOf(job *domain.Job) Snapshot {
	if job == nil {
		return Snapshot{}
	}
	return Snapshot{
		Job:             job,
		IsPending:       job.Status == domain.JobStatusPending,
		IsProcessing:    job.Status == domain.JobStatusProcessing || job.Status == domain.JobStatusRetrying,
		IsCompleted:     job.Status == domain.JobStatusCompleted,
		IsFailed:        job.Status == domain.JobStatusFailed,
		IsCancelled:     job.Status == domain.JobStatusCancelled,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		Result:          job.Result,
		Error:           job.ErrorInfo,
	}
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithInterval overrides the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(w *Watcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// Watcher polls one job until it is terminal. Start launches the loop;
// it stops itself once a terminal status is observed or the context is
// cancelled.
type Watcher struct {
	svc      service.JobService
	logger   *slog.Logger
	jobID    uuid.UUID
	interval time.Duration

	mu       sync.Mutex
	latest   *domain.Job
	fetching bool
	stopped  bool

	updates chan Snapshot
	done    chan struct{}
}

// NewWatcher creates a Watcher for the given job.
func NewWatcher(svc service.JobService, jobID uuid.UUID, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		svc:      svc,
		logger:   logger.With("component", "job_watcher", "job_id", jobID),
		jobID:    jobID,
		interval: DefaultInterval,
		updates:  make(chan Snapshot, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the poll loop. It fetches once immediately, then on
// every interval tick, skipping ticks while a fetch is still in flight.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Updates delivers a Snapshot after each successful fetch. The channel
// is closed when the watcher stops.
func (w *Watcher) Updates() <-chan Snapshot {
	return w.updates
}

// Done is closed when the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Snapshot returns the most recently observed state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return snapshotOf(w.latest)
}

// Refresh fetches the job immediately, bypassing the interval.
func (w *Watcher) Refresh(ctx context.Context) error {
	return w.fetch(ctx)
}

// Cancel asks the service to cancel the job, then refreshes so the
// snapshot reflects the outcome.
func (w *Watcher) Cancel(ctx context.Context) error {
	if err := w.svc.CancelJob(ctx, w.jobID); err != nil {
		return err
	}
	return w.fetch(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.stop()

	w.tryFetch(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			if w.terminalObserved() {
				return
			}
			w.tryFetch(ctx)
		}
	}
}

// tryFetch starts a fetch unless one is already in flight.
func (w *Watcher) tryFetch(ctx context.Context) {
	w.mu.Lock()
	if w.fetching {
		w.mu.Unlock()
		return
	}
	w.fetching = true
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			w.fetching = false
			w.mu.Unlock()
		}()
		if err := w.fetch(ctx); err != nil {
			w.logger.DebugContext(ctx, "poll fetch failed", "error", err)
			return
		}
		if w.terminalObserved() {
			w.stop()
		}
	}()
}

// fetch retrieves the job and publishes the new snapshot.
func (w *Watcher) fetch(ctx context.Context) error {
	job, err := w.svc.GetJob(ctx, w.jobID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.latest = job
	if !w.stopped {
		select {
		case w.updates <- snapshotOf(job):
		default:
			// A slow consumer drops intermediate snapshots; the latest
			// state is always available via Snapshot().
		}
	}
	w.mu.Unlock()
	return nil
}

func (w *Watcher) terminalObserved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest != nil && w.latest.IsTerminal()
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.done)
	close(w.updates)
}
