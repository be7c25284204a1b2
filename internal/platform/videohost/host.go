// Package videohost hands staged media files to the external video
// hosting service: a chunked transfer of the bytes followed by an asset
// registration that yields the playback identifiers.
package videohost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/upload"
)

const (
	uploadPath = "/v1/uploads"
	assetPath  = "/v1/assets"
)

// Host transfers staged files to the video hosting service. It
// implements executor.VideoHost.
type Host struct {
	logger   *slog.Logger
	uploader *upload.ChunkedUploader
	client   *http.Client
	baseURL  string
}

// Option customizes a Host.
type Option func(*Host)

// WithHTTPClient replaces the default HTTP client used for asset
// registration.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Host) { h.client = client }
}

// New creates a Host for the given base URL.
func New(baseURL string, uploader *upload.ChunkedUploader, logger *slog.Logger, opts ...Option) *Host {
	h := &Host{
		logger:   logger,
		uploader: uploader,
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// UploadVideo transfers the staged file and registers it as a playable
// asset. The byte transfer occupies the 0-90 progress band; asset
// registration completes the remainder.
func (h *Host) UploadVideo(
	ctx context.Context,
	payload domain.MediaUploadPayload,
	progress func(percent int),
) (*domain.MediaUploadResult, error) {
	if progress == nil {
		progress = func(int) {}
	}

	file, err := os.Open(payload.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: staged file %q", executor.ErrNotFound, payload.FilePath)
		}
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat staged file: %w", err)
	}

	name := payload.FileName
	if name == "" {
		name = filepath.Base(payload.FilePath)
	}
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}

	src := upload.Source{
		Name:        name,
		ContentType: contentType,
		Size:        info.Size(),
		Reader:      file,
	}

	uploaded, err := h.uploader.Upload(ctx, src, h.baseURL+uploadPath, func(p int) {
		progress(p * 90 / 100)
	})
	if err != nil {
		return nil, classifyUploadError(err)
	}

	result, err := h.registerAsset(ctx, uploaded.Path, name)
	if err != nil {
		return nil, err
	}
	progress(100)

	h.logger.InfoContext(ctx, "video registered with host",
		"playback_id", result.PlaybackID,
		"asset_id", result.AssetID,
		"chunks", uploaded.TotalChunks)
	return result, nil
}

// registerAsset tells the host to create a playable asset from the
// uploaded path.
func (h *Host) registerAsset(ctx context.Context, path, name string) (*domain.MediaUploadResult, error) {
	body, err := json.Marshal(map[string]string{"path": path, "name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal asset request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+assetPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build asset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: asset registration: %v", executor.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: asset registration returned %d", executor.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: asset registration returned %d", executor.ErrInvalidResponse, resp.StatusCode)
	}

	var result domain.MediaUploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: malformed asset response: %v", executor.ErrInvalidResponse, err)
	}
	return &result, nil
}

// classifyUploadError maps uploader failures into the executor taxonomy.
func classifyUploadError(err error) error {
	var vErr *upload.ValidationError
	if errors.As(err, &vErr) {
		return fmt.Errorf("%w: %v", executor.ErrInvalidPayload, err)
	}
	if errors.Is(err, upload.ErrUploadCancelled) {
		return err
	}

	var uErr *upload.UploadError
	if errors.As(err, &uErr) {
		switch {
		case uErr.Retryable():
			return fmt.Errorf("%w: %v", executor.ErrTransient, err)
		case uErr.StatusCode == http.StatusUnauthorized || uErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", executor.ErrUnauthorized, err)
		case uErr.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", executor.ErrNotFound, err)
		case uErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", executor.ErrQuotaExceeded, err)
		default:
			return fmt.Errorf("%w: %v", executor.ErrInvalidResponse, err)
		}
	}
	return fmt.Errorf("%w: %v", executor.ErrTransient, err)
}

var _ executor.VideoHost = (*Host)(nil)
