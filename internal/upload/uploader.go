// Package upload implements the chunked, resumable file transfer used to
// hand media files to external hosts. Small files go up in a single
// multipart POST; larger ones are split into fixed-size chunks that are
// retried independently, so one dropped packet never restarts the whole
// transfer.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/retry"
)

// Chunk wire headers. The receiving host reassembles by offset.
const (
	headerUploadName   = "X-Upload-Name"
	headerUploadOffset = "X-Upload-Offset"
	headerUploadTotal  = "X-Upload-Total-Size"
	headerChunkIndex   = "X-Upload-Chunk-Index"
	headerChunkCount   = "X-Upload-Chunk-Count"
)

// defaultAllowedTypes lists the content types accepted when the caller
// does not override them.
var defaultAllowedTypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/webm",
	"audio/mpeg",
	"audio/mp4",
	"audio/wav",
}

// Source describes the file to transfer.
type Source struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Result summarizes a finished upload.
type Result struct {
	// URL is where the host serves the file from.
	URL string `json:"url"`
	// Path is the host-side storage path.
	Path string `json:"path"`
	// TotalChunks is the number of chunks sent; 1 for single-shot.
	TotalChunks int
	// Elapsed is the wall-clock transfer time.
	Elapsed time.Duration
}

// ProgressFunc receives monotonic transfer progress in [0,100]; the
// final call is always 100. A nil ProgressFunc disables reporting.
type ProgressFunc func(percent int)

// Option customizes a ChunkedUploader.
type Option func(*ChunkedUploader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(u *ChunkedUploader) { u.client = client }
}

// WithAllowedTypes replaces the accepted content-type list.
func WithAllowedTypes(types []string) Option {
	return func(u *ChunkedUploader) { u.allowedTypes = types }
}

// WithRetryConfig replaces the per-chunk retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(u *ChunkedUploader) { u.retryCfg = cfg }
}

// ChunkedUploader transfers files to an HTTP endpoint.
type ChunkedUploader struct {
	logger       *slog.Logger
	client       *http.Client
	chunkSize    int64
	maxFileSize  int64
	allowedTypes []string
	retryCfg     retry.Config
}

// New creates a ChunkedUploader from the upload configuration.
func New(cfg config.UploadConfig, logger *slog.Logger, opts ...Option) *ChunkedUploader {
	u := &ChunkedUploader{
		logger:       logger,
		client:       &http.Client{Timeout: 2 * time.Minute},
		chunkSize:    cfg.ChunkSizeBytes,
		maxFileSize:  cfg.MaxFileSizeBytes,
		allowedTypes: defaultAllowedTypes,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     15 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload validates the source and transfers it to the endpoint. Files at
// or below the chunk size go in one multipart POST; larger files are
// split into fixed-size chunks, each retried independently.
func (u *ChunkedUploader) Upload(
	ctx context.Context,
	src Source,
	endpoint string,
	progress ProgressFunc,
) (*Result, error) {
	if err := u.validate(src); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int) {}
	}

	start := time.Now()
	progress(0)

	var (
		result *Result
		err    error
	)
	if src.Size <= u.chunkSize {
		result, err = u.uploadSingle(ctx, src, endpoint, progress)
	} else {
		result, err = u.uploadChunked(ctx, src, endpoint, progress)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadCancelled, ctx.Err())
		}
		return nil, err
	}

	result.Elapsed = time.Since(start)
	progress(100)

	u.logger.InfoContext(ctx, "upload finished",
		"name", src.Name,
		"size_bytes", src.Size,
		"chunks", result.TotalChunks,
		"elapsed_ms", result.Elapsed.Milliseconds())
	return result, nil
}

// validate rejects files the host would refuse before sending anything.
func (u *ChunkedUploader) validate(src Source) error {
	if src.Name == "" {
		return &ValidationError{Field: "name", Message: "file name is required"}
	}
	if src.Size <= 0 {
		return &ValidationError{Field: "size", Message: "file is empty"}
	}
	if src.Size > u.maxFileSize {
		return &ValidationError{
			Field:   "size",
			Message: fmt.Sprintf("file size %d exceeds limit %d", src.Size, u.maxFileSize),
		}
	}
	for _, t := range u.allowedTypes {
		if src.ContentType == t {
			return nil
		}
	}
	return &ValidationError{
		Field:   "content_type",
		Message: fmt.Sprintf("content type %q is not accepted", src.ContentType),
	}
}

// uploadSingle sends the whole file as one multipart POST.
func (u *ChunkedUploader) uploadSingle(
	ctx context.Context,
	src Source,
	endpoint string,
	progress ProgressFunc,
) (*Result, error) {
	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload source: %w", err)
	}
	if int64(len(data)) != src.Size {
		return nil, &ValidationError{
			Field:   "size",
			Message: fmt.Sprintf("declared size %d but read %d bytes", src.Size, len(data)),
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", src.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	var result Result
	err = retry.Do(ctx, u.retryCfg, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			bytes.NewReader(body.Bytes()))
		if reqErr != nil {
			return fmt.Errorf("failed to build upload request: %w", reqErr)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set(headerUploadName, src.Name)

		return u.send(req, 0, &result)
	})
	if err != nil {
		return nil, err
	}

	progress(99)
	result.TotalChunks = 1
	return &result, nil
}

// uploadChunked splits the file into fixed-size chunks and sends them in
// order. Each chunk is buffered so a retry re-sends identical bytes.
func (u *ChunkedUploader) uploadChunked(
	ctx context.Context,
	src Source,
	endpoint string,
	progress ProgressFunc,
) (*Result, error) {
	totalChunks := int((src.Size + u.chunkSize - 1) / u.chunkSize)
	buf := make([]byte, u.chunkSize)

	var (
		offset int64
		result Result
	)
	for index := 0; index < totalChunks; index++ {
		n, err := io.ReadFull(src.Reader, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", index, err)
		}
		if n == 0 {
			return nil, &ValidationError{
				Field:   "size",
				Message: fmt.Sprintf("source ended at %d bytes, declared %d", offset, src.Size),
			}
		}
		chunk := buf[:n]

		err = retry.Do(ctx, u.retryCfg, func(ctx context.Context) error {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
				bytes.NewReader(chunk))
			if reqErr != nil {
				return fmt.Errorf("failed to build chunk request: %w", reqErr)
			}
			req.Header.Set("Content-Type", "application/octet-stream")
			req.Header.Set(headerUploadName, src.Name)
			req.Header.Set(headerUploadOffset, strconv.FormatInt(offset, 10))
			req.Header.Set(headerUploadTotal, strconv.FormatInt(src.Size, 10))
			req.Header.Set(headerChunkIndex, strconv.Itoa(index))
			req.Header.Set(headerChunkCount, strconv.Itoa(totalChunks))

			return u.send(req, index, &result)
		})
		if err != nil {
			return nil, err
		}

		offset += int64(n)

		// Scale completed chunks into [0,99]; 100 is reported by Upload
		// once the whole transfer is acknowledged.
		percent := (index + 1) * 99 / totalChunks
		progress(percent)
	}

	result.TotalChunks = totalChunks
	return &result, nil
}

// send executes one chunk request and decodes the host's response into
// result. Intermediate chunk acks without a body leave result untouched.
func (u *ChunkedUploader) send(req *http.Request, chunk int, result *Result) error {
	resp, err := u.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &UploadError{Chunk: chunk, retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return &UploadError{
			StatusCode: resp.StatusCode,
			Chunk:      chunk,
			retryable:  true,
			Err:        fmt.Errorf("server error"),
		}
	case resp.StatusCode >= 400:
		return &UploadError{
			StatusCode: resp.StatusCode,
			Chunk:      chunk,
			retryable:  false,
			Err:        fmt.Errorf("request rejected"),
		}
	}

	var decoded Result
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &UploadError{
			StatusCode: resp.StatusCode,
			Chunk:      chunk,
			retryable:  false,
			Err:        fmt.Errorf("malformed response body: %v", err),
		}
	}
	if decoded.URL != "" || decoded.Path != "" {
		result.URL = decoded.URL
		result.Path = decoded.Path
	}
	return nil
}
