// Package speechapi implements the HTTP-backed speech providers: audio
// transcription and text-to-speech synthesis against the configured
// speech service.
package speechapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/retry"
)

const (
	transcriptionPath = "/v1/transcriptions"
	synthesisPath     = "/v1/speech"
)

// Client calls the speech service. It implements executor.SpeechToText
// and executor.SpeechSynthesizer.
type Client struct {
	logger   *slog.Logger
	client   *http.Client
	baseURL  string
	apiKey   string
	retryCfg retry.Config
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.client = httpClient }
}

// WithRetryConfig replaces the default retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// NewClient creates a speech service client for the given base URL.
func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		logger:  logger,
		client:  &http.Client{Timeout: 90 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     20 * time.Second,
			Multiplier:   2,
			Jitter:       true,
			Retryable: func(err error) bool {
				return errors.Is(err, executor.ErrTransient)
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe converts the audio at the given URL to text.
func (c *Client) Transcribe(
	ctx context.Context,
	audioURL, language string,
) (*domain.TranscriptionResult, error) {
	if audioURL == "" {
		return nil, fmt.Errorf("%w: audio URL is required", executor.ErrInvalidPayload)
	}

	reqBody := map[string]string{"audio_url": audioURL}
	if language != "" {
		reqBody["language"] = language
	}

	var result domain.TranscriptionResult
	if err := c.post(ctx, transcriptionPath, reqBody, &result); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "transcription received",
		"transcript_length", len(result.Transcript),
		"segments", len(result.Segments))
	return &result, nil
}

// Synthesize converts text to speech and returns a reference to the
// produced audio.
func (c *Client) Synthesize(
	ctx context.Context,
	text, voice string,
) (*domain.SpeechSynthesisResult, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", executor.ErrInvalidPayload)
	}

	reqBody := map[string]string{"text": text}
	if voice != "" {
		reqBody["voice"] = voice
	}

	var result domain.SpeechSynthesisResult
	if err := c.post(ctx, synthesisPath, reqBody, &result); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "speech synthesized",
		"audio_url", result.AudioURL,
		"duration_seconds", result.DurationS)
	return &result, nil
}

// post sends one JSON request with retry and decodes the response.
func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	return retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", executor.ErrTransient, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := classifyStatus(resp.StatusCode); err != nil {
			// Drain so the connection can be reused across retries.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: malformed response body: %v", executor.ErrInvalidResponse, err)
		}
		return nil
	})
}

// classifyStatus maps a non-2xx response to the executor taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: speech service returned %d", executor.ErrUnauthorized, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: speech service returned %d", executor.ErrNotFound, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: speech service returned %d", executor.ErrQuotaExceeded, status)
	case status >= 500:
		return fmt.Errorf("%w: speech service returned %d", executor.ErrTransient, status)
	default:
		return fmt.Errorf("%w: speech service returned %d", executor.ErrInvalidResponse, status)
	}
}

var (
	_ executor.SpeechToText      = (*Client)(nil)
	_ executor.SpeechSynthesizer = (*Client)(nil)
)
