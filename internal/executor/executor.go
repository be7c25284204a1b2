// Package executor contains the pluggable per-type job executors and the
// registry the processor dispatches through. An executor is a pure
// function from a job's payload to its result; all queue bookkeeping
// stays in the processor.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// ProgressFunc reports advisory progress as an executor advances through
// its internal phases. Implementations must tolerate being called from
// the executor's goroutine at any point during Execute.
type ProgressFunc func(percent int, message string)

// Executor performs the actual work for one job type.
type Executor interface {
	// Type returns the job type this executor handles.
	Type() domain.JobType

	// Execute runs the work described by the job's payload and returns
	// the serialized result. Progress is reported through report; errors
	// are classified with the package's taxonomy so the processor can
	// decide between retry and terminal failure.
	Execute(ctx context.Context, job *domain.Job, report ProgressFunc) (json.RawMessage, error)
}

// Registry maps job types to their executors. Registration happens once
// at startup; lookups are read-only afterwards, so a plain RWMutex keeps
// the registry safe without ceremony.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.JobType]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.JobType]Executor),
	}
}

// Register adds an executor for its job type.
// Registering the same type twice is a programming error and is rejected.
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobType := e.Type()
	if !domain.IsValidJobType(jobType) {
		return fmt.Errorf("cannot register executor for unknown job type %q", jobType)
	}
	if _, exists := r.executors[jobType]; exists {
		return fmt.Errorf("executor already registered for job type %q", jobType)
	}

	r.executors[jobType] = e
	return nil
}

// Lookup returns the executor for the given job type.
func (r *Registry) Lookup(jobType domain.JobType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: no executor for job type %q", ErrUnknownJobType, jobType)
	}
	return e, nil
}

// Types returns the registered job types, useful for startup logging.
func (r *Registry) Types() []domain.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.JobType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
