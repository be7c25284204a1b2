package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// SpeechToText is the provider boundary for audio transcription.
type SpeechToText interface {
	// Transcribe converts the audio at the given URL to text.
	Transcribe(ctx context.Context, audioURL, language string) (*domain.TranscriptionResult, error)
}

// TranscriptionExecutor handles transcription jobs by delegating to a
// speech-to-text provider.
type TranscriptionExecutor struct {
	provider SpeechToText
}

// NewTranscriptionExecutor creates a TranscriptionExecutor.
func NewTranscriptionExecutor(provider SpeechToText) *TranscriptionExecutor {
	return &TranscriptionExecutor{provider: provider}
}

// Type returns the job type this executor handles.
func (e *TranscriptionExecutor) Type() domain.JobType {
	return domain.JobTypeTranscription
}

// Execute transcribes the job's audio and returns the transcript.
func (e *TranscriptionExecutor) Execute(
	ctx context.Context,
	job *domain.Job,
	report ProgressFunc,
) (json.RawMessage, error) {
	var payload domain.TranscriptionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.AudioURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingAudioURL)
	}

	report(10, "Sending audio for transcription")

	result, err := e.provider.Transcribe(ctx, payload.AudioURL, payload.Language)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	if result.Transcript == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrInvalidResponse)
	}

	report(90, "Transcription received")

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcription result: %w", err)
	}
	return out, nil
}

var _ Executor = (*TranscriptionExecutor)(nil)
