package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a background job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// JobType identifies which executor handles a job and which payload
// and result shapes apply.
type JobType string

// The closed set of job types handled by the processor.
const (
	JobTypeTranscription      JobType = "transcription"
	JobTypeDocumentGeneration JobType = "document_generation"
	JobTypeMediaUpload        JobType = "media_upload"
	JobTypeSpeechSynthesis    JobType = "speech_synthesis"
	JobTypeAnswerEvaluation   JobType = "answer_evaluation"
)

// Defaults applied when a job is created without explicit values.
const (
	DefaultJobPriority   = 100
	DefaultJobMaxRetries = 3
)

// Common validation errors for Job
var (
	ErrEmptyJobID        = errors.New("job ID cannot be empty")
	ErrEmptyJobUserID    = errors.New("job user ID cannot be empty")
	ErrEmptyJobOrgID     = errors.New("job organization ID cannot be empty")
	ErrInvalidJobType    = errors.New("invalid job type")
	ErrInvalidJobStatus  = errors.New("invalid job status")
	ErrEmptyJobPayload   = errors.New("job payload cannot be empty")
	ErrNegativeRetries   = errors.New("job max retries cannot be negative")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Job represents a unit of deferred, potentially retried work tied to
// one of the closed set of operation types. Payload, Result and ErrorInfo
// are stored as JSON whose shape is determined by Type.
type Job struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	OrgID           uuid.UUID       `json:"org_id"`
	Type            JobType         `json:"type"`
	Status          JobStatus       `json:"status"`
	Priority        int             `json:"priority"`
	Payload         json.RawMessage `json:"payload"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorInfo       *JobError       `json:"error,omitempty"`
	ProgressPercent int             `json:"progress_percent"`
	ProgressMessage string          `json:"progress_message"`
	RetryCount      int             `json:"retry_count"`
	MaxRetries      int             `json:"max_retries"`
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"`
	EntityKind      string          `json:"entity_kind,omitempty"`
	EntityID        string          `json:"entity_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// JobError is the structured failure payload recorded when a job fails.
type JobError struct {
	Message    string    `json:"message"`
	Kind       string    `json:"kind,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// JobOption customizes a job at construction time.
type JobOption func(*Job)

// WithPriority sets the claim-ordering priority (lower is more urgent).
func WithPriority(priority int) JobOption {
	return func(j *Job) { j.Priority = priority }
}

// WithMaxRetries overrides the default retry budget.
func WithMaxRetries(maxRetries int) JobOption {
	return func(j *Job) { j.MaxRetries = maxRetries }
}

// WithEntityRef links the job to the business entity it serves,
// e.g. a training record. The reference is opaque to the job core.
func WithEntityRef(kind, id string) JobOption {
	return func(j *Job) {
		j.EntityKind = kind
		j.EntityID = id
	}
}

// NewJob creates a new pending Job for the given owner and type.
// It generates a new UUID for the job ID and sets creation timestamps.
// Returns an error if validation fails.
func NewJob(
	userID, orgID uuid.UUID,
	jobType JobType,
	payload json.RawMessage,
	opts ...JobOption,
) (*Job, error) {
	job := &Job{
		ID:         uuid.New(),
		UserID:     userID,
		OrgID:      orgID,
		Type:       jobType,
		Status:     JobStatusPending,
		Priority:   DefaultJobPriority,
		Payload:    payload,
		MaxRetries: DefaultJobMaxRetries,
		CreatedAt:  time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.UserID == uuid.Nil {
		return ErrEmptyJobUserID
	}

	if j.OrgID == uuid.Nil {
		return ErrEmptyJobOrgID
	}

	if !IsValidJobType(j.Type) {
		return ErrInvalidJobType
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if len(j.Payload) == 0 {
		return ErrEmptyJobPayload
	}

	if j.MaxRetries < 0 {
		return ErrNegativeRetries
	}

	return nil
}

// IsTerminal reports whether the job has reached a state from which no
// further transition is permitted.
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// CanTransitionTo reports whether moving from the job's current status
// to next is a legal state machine transition.
func (j *Job) CanTransitionTo(next JobStatus) bool {
	if j.IsTerminal() {
		return false
	}

	switch j.Status {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted ||
			next == JobStatusRetrying ||
			next == JobStatusFailed ||
			next == JobStatusCancelled
	case JobStatusRetrying:
		return next == JobStatusProcessing || next == JobStatusCancelled
	default:
		return false
	}
}

// IsTerminalStatus reports whether the given status is absorbing.
func IsTerminalStatus(status JobStatus) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidJobType checks if the given type is one of the closed set.
func IsValidJobType(jobType JobType) bool {
	switch jobType {
	case JobTypeTranscription, JobTypeDocumentGeneration, JobTypeMediaUpload,
		JobTypeSpeechSynthesis, JobTypeAnswerEvaluation:
		return true
	default:
		return false
	}
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusRetrying,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
