package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload validation errors
var (
	ErrMissingAudioURL      = errors.New("transcription payload requires an audio URL")
	ErrMissingTranscript    = errors.New("document generation payload requires a transcript")
	ErrMissingMediaDuration = errors.New("document generation payload requires a media duration")
	ErrMissingFilePath      = errors.New("media upload payload requires a file path")
	ErrMissingText          = errors.New("speech synthesis payload requires text")
	ErrMissingQuestion      = errors.New("answer evaluation payload requires a question")
	ErrMissingAnswer        = errors.New("answer evaluation payload requires an answer")
)

// TranscriptionPayload is the input for a transcription job.
type TranscriptionPayload struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language,omitempty"`
}

// TranscriptionResult is the output of a completed transcription job.
type TranscriptionResult struct {
	Transcript string              `json:"transcript"`
	Segments   []TranscriptSegment `json:"segments,omitempty"`
	DurationS  float64             `json:"duration_seconds,omitempty"`
}

// TranscriptSegment is a time-aligned span of the transcript.
type TranscriptSegment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

// DocumentGenerationPayload is the input for a document generation job.
// MediaDuration bounds chapter end times in the generated output.
type DocumentGenerationPayload struct {
	Transcript    string  `json:"transcript"`
	Title         string  `json:"title,omitempty"`
	MediaDuration float64 `json:"media_duration"`
}

// DocumentGenerationResult is the output of a completed document
// generation job: chapter markers, a structured procedure document
// and the key points extracted from the transcript.
type DocumentGenerationResult struct {
	Chapters  []Chapter       `json:"chapters"`
	Procedure []ProcedureStep `json:"procedure"`
	KeyPoints []string        `json:"key_points"`
}

// Chapter is a titled span of the source media.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// ProcedureStep is one numbered step of the generated procedure document.
type ProcedureStep struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ClampChapters bounds every chapter's end time to the given media
// duration. Generated chapter markers routinely overshoot the real
// media length, so stored output must never exceed it.
func ClampChapters(chapters []Chapter, duration float64) []Chapter {
	clamped := make([]Chapter, len(chapters))
	for i, ch := range chapters {
		if ch.EndTime > duration {
			ch.EndTime = duration
		}
		if ch.StartTime > duration {
			ch.StartTime = duration
		}
		clamped[i] = ch
	}
	return clamped
}

// MediaUploadPayload is the input for a media upload job: a file already
// in staging storage to be handed off to the video host.
type MediaUploadPayload struct {
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// MediaUploadResult is the opaque playback/asset identifier pair returned
// by the video host.
type MediaUploadResult struct {
	PlaybackID string `json:"playback_id"`
	AssetID    string `json:"asset_id"`
}

// SpeechSynthesisPayload is the input for a speech synthesis job.
type SpeechSynthesisPayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SpeechSynthesisResult is the output of a completed speech synthesis job.
type SpeechSynthesisResult struct {
	AudioURL    string  `json:"audio_url"`
	ContentType string  `json:"content_type,omitempty"`
	DurationS   float64 `json:"duration_seconds,omitempty"`
}

// AnswerEvaluationPayload is the input for an answer evaluation job.
type AnswerEvaluationPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context,omitempty"`
}

// AnswerEvaluationResult is the graded feedback for a submitted answer.
type AnswerEvaluationResult struct {
	Score    int    `json:"score"`
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// ValidatePayload checks that the raw payload unmarshals into the shape
// required by the job type and carries its required fields. This keeps
// malformed jobs out of the queue before an executor ever sees them.
func ValidatePayload(jobType JobType, raw json.RawMessage) error {
	switch jobType {
	case JobTypeTranscription:
		var p TranscriptionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid transcription payload: %w", err)
		}
		if p.AudioURL == "" {
			return ErrMissingAudioURL
		}
	case JobTypeDocumentGeneration:
		var p DocumentGenerationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid document generation payload: %w", err)
		}
		if p.Transcript == "" {
			return ErrMissingTranscript
		}
		if p.MediaDuration <= 0 {
			return ErrMissingMediaDuration
		}
	case JobTypeMediaUpload:
		var p MediaUploadPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid media upload payload: %w", err)
		}
		if p.FilePath == "" {
			return ErrMissingFilePath
		}
	case JobTypeSpeechSynthesis:
		var p SpeechSynthesisPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid speech synthesis payload: %w", err)
		}
		if p.Text == "" {
			return ErrMissingText
		}
	case JobTypeAnswerEvaluation:
		var p AnswerEvaluationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid answer evaluation payload: %w", err)
		}
		if p.Question == "" {
			return ErrMissingQuestion
		}
		if p.Answer == "" {
			return ErrMissingAnswer
		}
	default:
		return ErrInvalidJobType
	}

	return nil
}
