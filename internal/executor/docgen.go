package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// DocumentGenerator is the provider boundary for LLM-based document
// generation from a transcript.
type DocumentGenerator interface {
	// GenerateDocument produces chapter markers, a procedure document and
	// key points from the transcript.
	GenerateDocument(
		ctx context.Context,
		transcript, title string,
	) (*domain.DocumentGenerationResult, error)
}

// DocumentGenerationExecutor handles document generation jobs.
type DocumentGenerationExecutor struct {
	generator DocumentGenerator
}

// NewDocumentGenerationExecutor creates a DocumentGenerationExecutor.
func NewDocumentGenerationExecutor(generator DocumentGenerator) *DocumentGenerationExecutor {
	return &DocumentGenerationExecutor{generator: generator}
}

// Type returns the job type this executor handles.
func (e *DocumentGenerationExecutor) Type() domain.JobType {
	return domain.JobTypeDocumentGeneration
}

// Execute generates the training document for the job's transcript.
// Chapter end times from the model routinely overshoot the real media
// length, so the stored output is clamped to the payload's duration.
func (e *DocumentGenerationExecutor) Execute(
	ctx context.Context,
	job *domain.Job,
	report ProgressFunc,
) (json.RawMessage, error) {
	var payload domain.DocumentGenerationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Transcript == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingTranscript)
	}
	if payload.MediaDuration <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingMediaDuration)
	}

	report(10, "Generating training document")

	result, err := e.generator.GenerateDocument(ctx, payload.Transcript, payload.Title)
	if err != nil {
		return nil, fmt.Errorf("document generation failed: %w", err)
	}

	report(80, "Post-processing generated document")

	result.Chapters = domain.ClampChapters(result.Chapters, payload.MediaDuration)

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document result: %w", err)
	}
	return out, nil
}

var _ Executor = (*DocumentGenerationExecutor)(nil)
