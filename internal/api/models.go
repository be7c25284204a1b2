package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Type       string          `json:"type"                  validate:"required"`
	Payload    json.RawMessage `json:"payload"               validate:"required"`
	Priority   *int            `json:"priority,omitempty"    validate:"omitempty,gte=0"`
	MaxRetries *int            `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	EntityKind string          `json:"entity_kind,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
}

// JobResponse is the wire shape of a job.
type JobResponse struct {
	ID              uuid.UUID        `json:"id"`
	Type            string           `json:"type"`
	Status          string           `json:"status"`
	Priority        int              `json:"priority"`
	ProgressPercent int              `json:"progress_percent"`
	ProgressMessage string           `json:"progress_message,omitempty"`
	RetryCount      int              `json:"retry_count"`
	MaxRetries      int              `json:"max_retries"`
	NextRetryAt     *time.Time       `json:"next_retry_at,omitempty"`
	EntityKind      string           `json:"entity_kind,omitempty"`
	EntityID        string           `json:"entity_id,omitempty"`
	Result          json.RawMessage  `json:"result,omitempty"`
	Error           *domain.JobError `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// NewJobResponse converts a domain job to its wire shape.
func NewJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:              job.ID,
		Type:            string(job.Type),
		Status:          string(job.Status),
		Priority:        job.Priority,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		RetryCount:      job.RetryCount,
		MaxRetries:      job.MaxRetries,
		NextRetryAt:     job.NextRetryAt,
		EntityKind:      job.EntityKind,
		EntityID:        job.EntityID,
		Result:          job.Result,
		Error:           job.ErrorInfo,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

// JobListResponse is the body of GET /api/jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ProcessRequest is the optional body of POST /internal/jobs/process.
// JobTypes is informational; the processor drains whatever is eligible.
type ProcessRequest struct {
	JobTypes []string `json:"jobTypes,omitempty"`
}

// CleanupRequest is the optional body of POST /internal/jobs/cleanup.
type CleanupRequest struct {
	OlderThanDays int `json:"olderThanDays,omitempty" validate:"omitempty,gt=0"`
}

// CleanupResponse reports how many jobs the retention sweep removed.
type CleanupResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}
