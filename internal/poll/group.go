package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/service"
)

// GroupSnapshot aggregates the state of a set of watched jobs, e.g. the
// transcription + document generation + upload jobs behind one course
// publish.
type GroupSnapshot struct {
	Jobs map[uuid.UUID]*domain.Job
	// AverageProgress is the mean progress across all jobs; completed
	// jobs count as 100 regardless of their last written percent.
	AverageProgress int
	AnyFailed       bool
	AllTerminal     bool
}

// GroupWatcher polls a fixed set of jobs until every one is terminal.
type GroupWatcher struct {
	svc      service.JobService
	logger   *slog.Logger
	jobIDs   []uuid.UUID
	interval time.Duration

	mu       sync.Mutex
	jobs     map[uuid.UUID]*domain.Job
	fetching bool
	stopped  bool

	done chan struct{}
}

// GroupOption customizes a GroupWatcher.
type GroupOption func(*GroupWatcher)

// WithGroupInterval overrides the poll interval.
func WithGroupInterval(interval time.Duration) GroupOption {
	return func(w *GroupWatcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// NewGroupWatcher creates a GroupWatcher over the given job IDs.
func NewGroupWatcher(
	svc service.JobService,
	jobIDs []uuid.UUID,
	logger *slog.Logger,
	opts ...GroupOption,
) *GroupWatcher {
	w := &GroupWatcher{
		svc:      svc,
		logger:   logger.With("component", "group_watcher", "job_count", len(jobIDs)),
		jobIDs:   append([]uuid.UUID(nil), jobIDs...),
		interval: DefaultInterval,
		jobs:     make(map[uuid.UUID]*domain.Job, len(jobIDs)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the poll loop. The watcher stops itself once every job
// in the group is terminal.
func (w *GroupWatcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Done is closed when the watcher has stopped.
func (w *GroupWatcher) Done() <-chan struct{} {
	return w.done
}

// Refresh fetches every job in the group immediately.
func (w *GroupWatcher) Refresh(ctx context.Context) error {
	return w.fetchAll(ctx)
}

// Snapshot returns the aggregated state of the group.
func (w *GroupWatcher) Snapshot() GroupSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := GroupSnapshot{
		Jobs:        make(map[uuid.UUID]*domain.Job, len(w.jobs)),
		AllTerminal: len(w.jobs) == len(w.jobIDs) && len(w.jobIDs) > 0,
	}

	total := 0
	for id, job := range w.jobs {
		snap.Jobs[id] = job
		switch {
		case job.Status == domain.JobStatusCompleted:
			total += 100
		default:
			total += job.ProgressPercent
		}
		if job.Status == domain.JobStatusFailed {
			snap.AnyFailed = true
		}
		if !job.IsTerminal() {
			snap.AllTerminal = false
		}
	}
	if len(w.jobs) > 0 {
		snap.AverageProgress = total / len(w.jobs)
	}
	return snap
}

func (w *GroupWatcher) loop(ctx context.Context) {
	defer w.stop()

	if len(w.jobIDs) == 0 {
		return
	}

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
			if w.Snapshot().AllTerminal {
				return
			}
			w.tryFetch(ctx)
		}
	}
}

func (w *GroupWatcher) tryFetch(ctx context.Context) {
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
		if err := w.fetchAll(ctx); err != nil {
			w.logger.DebugContext(ctx, "group poll fetch failed", "error", err)
			return
		}
		if w.Snapshot().AllTerminal {
			w.stop()
		}
	}()
}

// fetchAll refreshes every job; the first fetch error stops the pass but
// keeps states already retrieved.
func (w *GroupWatcher) fetchAll(ctx context.Context) error {
	for _, id := range w.jobIDs {
		job, err := w.svc.GetJob(ctx, id)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.jobs[id] = job
		w.mu.Unlock()
	}
	return nil
}

func (w *GroupWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.done)
}
