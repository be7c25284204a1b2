package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// SpeechSynthesizer is the provider boundary for text-to-speech.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*domain.SpeechSynthesisResult, error)
}

// SpeechSynthesisExecutor handles speech synthesis jobs.
type SpeechSynthesisExecutor struct {
	provider SpeechSynthesizer
}

// NewSpeechSynthesisExecutor creates a SpeechSynthesisExecutor.
func NewSpeechSynthesisExecutor(provider SpeechSynthesizer) *SpeechSynthesisExecutor {
	return &SpeechSynthesisExecutor{provider: provider}
}

// Type returns the job type this executor handles.
func (e *SpeechSynthesisExecutor) Type() domain.JobType {
	return domain.JobTypeSpeechSynthesis
}

// Execute synthesizes speech for the job's text.
func (e *SpeechSynthesisExecutor) Execute(
	ctx context.Context,
	job *domain.Job,
	report ProgressFunc,
) (json.RawMessage, error) {
	var payload domain.SpeechSynthesisPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Text == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingText)
	}

	report(10, "Synthesizing speech")

	result, err := e.provider.Synthesize(ctx, payload.Text, payload.Voice)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	if result.AudioURL == "" {
		return nil, fmt.Errorf("%w: missing audio URL", ErrInvalidResponse)
	}

	report(90, "Speech synthesis finished")

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis result: %w", err)
	}
	return out, nil
}

var _ Executor = (*SpeechSynthesisExecutor)(nil)
