package videohost

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/retry"
	"github.com/traindeck/traindeck-api/internal/upload"
)

func stageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testHost(t *testing.T, baseURL string) *Host {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uploader := upload.New(
		config.UploadConfig{ChunkSizeBytes: 64, MaxFileSizeBytes: 1024},
		logger,
		upload.WithRetryConfig(retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			Multiplier:   2,
		}),
	)
	return New(baseURL, uploader, logger)
}

func TestUploadVideo(t *testing.T) {
	t.Parallel()

	t.Run("upload_and_register", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var uploadedBytes int
		var registeredPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/uploads":
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				mu.Lock()
				uploadedBytes += len(body)
				mu.Unlock()
				_ = json.NewEncoder(w).Encode(map[string]string{
					"url":  "https://host.example.com/raw/clip",
					"path": "raw/clip.mp4",
				})
			case "/v1/assets":
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				mu.Lock()
				registeredPath = body["path"]
				mu.Unlock()
				_ = json.NewEncoder(w).Encode(map[string]string{
					"playback_id": "pb_123",
					"asset_id":    "as_456",
				})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer server.Close()

		content := strings.Repeat("x", 150)
		host := testHost(t, server.URL)

		var percents []int
		result, err := host.UploadVideo(context.Background(),
			domain.MediaUploadPayload{FilePath: stageFile(t, content)},
			func(p int) { percents = append(percents, p) })
		require.NoError(t, err)

		assert.Equal(t, "pb_123", result.PlaybackID)
		assert.Equal(t, "as_456", result.AssetID)
		assert.Equal(t, "raw/clip.mp4", registeredPath)

		// Multipart framing adds overhead, so at least the raw bytes arrived.
		assert.GreaterOrEqual(t, uploadedBytes, len(content))

		require.NotEmpty(t, percents)
		assert.Equal(t, 100, percents[len(percents)-1])
		for i := 1; i < len(percents); i++ {
			assert.GreaterOrEqual(t, percents[i], percents[i-1])
		}
	})

	t.Run("missing_staged_file", func(t *testing.T) {
		t.Parallel()

		host := testHost(t, "http://unused.invalid")
		_, err := host.UploadVideo(context.Background(),
			domain.MediaUploadPayload{FilePath: "/nonexistent/clip.mp4"}, nil)
		assert.ErrorIs(t, err, executor.ErrNotFound)
	})

	t.Run("persistent_server_error_is_transient", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		host := testHost(t, server.URL)
		_, err := host.UploadVideo(context.Background(),
			domain.MediaUploadPayload{FilePath: stageFile(t, "tiny")}, nil)
		assert.ErrorIs(t, err, executor.ErrTransient)
	})

	t.Run("failed_asset_registration", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/uploads":
				_ = json.NewEncoder(w).Encode(map[string]string{"url": "u", "path": "p"})
			case "/v1/assets":
				w.WriteHeader(http.StatusUnprocessableEntity)
			}
		}))
		defer server.Close()

		host := testHost(t, server.URL)
		_, err := host.UploadVideo(context.Background(),
			domain.MediaUploadPayload{FilePath: stageFile(t, "tiny")}, nil)
		assert.ErrorIs(t, err, executor.ErrInvalidResponse)
	})
}
