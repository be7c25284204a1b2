package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// VideoHost is the provider boundary for handing a staged video file to
// the hosting service. The handoff reports its own transfer progress.
type VideoHost interface {
	// UploadVideo transfers the staged file and returns the host's
	// playback/asset identifier pair.
	UploadVideo(
		ctx context.Context,
		payload domain.MediaUploadPayload,
		progress func(percent int),
	) (*domain.MediaUploadResult, error)
}

// MediaUploadExecutor handles media upload jobs.
type MediaUploadExecutor struct {
	host VideoHost
}

// NewMediaUploadExecutor creates a MediaUploadExecutor.
func NewMediaUploadExecutor(host VideoHost) *MediaUploadExecutor {
	return &MediaUploadExecutor{host: host}
}

// Type returns the job type this executor handles.
func (e *MediaUploadExecutor) Type() domain.JobType {
	return domain.JobTypeMediaUpload
}

// Execute hands the staged file to the video host. Transfer progress is
// mapped into the 10-95 band so the final complete/fail transition owns
// the endpoints.
func (e *MediaUploadExecutor) Execute(
	ctx context.Context,
	job *domain.Job,
	report ProgressFunc,
) (json.RawMessage, error) {
	var payload domain.MediaUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.FilePath == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingFilePath)
	}

	report(10, "Starting video handoff")

	result, err := e.host.UploadVideo(ctx, payload, func(percent int) {
		scaled := 10 + percent*85/100
		report(scaled, "Transferring video to host")
	})
	if err != nil {
		return nil, fmt.Errorf("video handoff failed: %w", err)
	}
	if result.PlaybackID == "" || result.AssetID == "" {
		return nil, fmt.Errorf("%w: missing playback or asset identifier", ErrInvalidResponse)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload result: %w", err)
	}
	return out, nil
}

var _ Executor = (*MediaUploadExecutor)(nil)
