package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"text/template"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/executor"
)

// newTestClient builds a Client with a stubbed model call so tests never
// touch the network.
func newTestClient(t *testing.T, generate generateFn) *Client {
	t.Helper()

	docTemplate, err := template.New("document").Parse(documentPromptTemplate)
	require.NoError(t, err)
	evalTemplate, err := template.New("evaluation").Parse(evaluationPromptTemplate)
	require.NoError(t, err)

	return &Client{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg: config.LLMConfig{
			GeminiAPIKey:      "test-key",
			ModelName:         "gemini-test",
			MaxRetries:        2,
			RetryDelaySeconds: 1,
		},
		docTemplate:  docTemplate,
		evalTemplate: evalTemplate,
		generate:     generate,
	}
}

func TestGenerateDocument(t *testing.T) {
	t.Parallel()

	t.Run("successful_generation", func(t *testing.T) {
		t.Parallel()

		var gotPrompt string
		client := newTestClient(t, func(_ context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return `{
				"chapters": [{"title": "Setup", "start_time": 0, "end_time": 45}],
				"procedure": [{"order": 1, "title": "Isolate power", "description": "Flip the main breaker."}],
				"key_points": ["Always verify isolation before touching the panel."]
			}`, nil
		})

		result, err := client.GenerateDocument(context.Background(), "first, isolate power...", "Panel Maintenance")
		require.NoError(t, err)

		assert.Contains(t, gotPrompt, "first, isolate power...")
		assert.Contains(t, gotPrompt, "Panel Maintenance")
		require.Len(t, result.Chapters, 1)
		assert.Equal(t, "Setup", result.Chapters[0].Title)
		require.Len(t, result.Procedure, 1)
		assert.Equal(t, 1, result.Procedure[0].Order)
	})

	t.Run("empty_transcript_rejected", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(context.Context, string) (string, error) {
			t.Fatal("model should not be called")
			return "", nil
		})

		_, err := client.GenerateDocument(context.Background(), "", "title")
		assert.ErrorIs(t, err, executor.ErrInvalidPayload)
	})

	t.Run("malformed_json_response", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(context.Context, string) (string, error) {
			return "not json at all", nil
		})

		_, err := client.GenerateDocument(context.Background(), "transcript", "")
		assert.ErrorIs(t, err, executor.ErrInvalidResponse)
	})

	t.Run("empty_document_rejected", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(context.Context, string) (string, error) {
			return `{"chapters": [], "procedure": [], "key_points": []}`, nil
		})

		_, err := client.GenerateDocument(context.Background(), "transcript", "")
		assert.ErrorIs(t, err, executor.ErrInvalidResponse)
	})

	t.Run("transient_error_retried_until_success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		client := newTestClient(t, func(context.Context, string) (string, error) {
			calls++
			if calls < 2 {
				return "", fmt.Errorf("%w: connection reset", executor.ErrTransient)
			}
			return `{"chapters": [], "procedure": [], "key_points": ["one point"]}`, nil
		})
		// Keep the test fast.
		client.cfg.RetryDelaySeconds = 1
		start := time.Now()

		result, err := client.GenerateDocument(context.Background(), "transcript", "")
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, []string{"one point"}, result.KeyPoints)
		assert.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("permanent_error_not_retried", func(t *testing.T) {
		t.Parallel()

		calls := 0
		client := newTestClient(t, func(context.Context, string) (string, error) {
			calls++
			return "", fmt.Errorf("%w: %v", executor.ErrInvalidResponse, ErrContentBlocked)
		})

		_, err := client.GenerateDocument(context.Background(), "transcript", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, executor.ErrInvalidResponse)
		assert.Equal(t, 1, calls)
	})
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("successful_evaluation", func(t *testing.T) {
		t.Parallel()

		var gotPrompt string
		client := newTestClient(t, func(_ context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return `{"score": 90, "correct": true, "feedback": "Correct, and well reasoned."}`, nil
		})

		result, err := client.Evaluate(context.Background(),
			"What is the first step?", "Isolate power", "Step 1: isolate power.")
		require.NoError(t, err)

		assert.Contains(t, gotPrompt, "What is the first step?")
		assert.Contains(t, gotPrompt, "Isolate power")
		assert.Contains(t, gotPrompt, "Step 1: isolate power.")
		assert.Equal(t, 90, result.Score)
		assert.True(t, result.Correct)
	})

	t.Run("missing_question_rejected", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(context.Context, string) (string, error) {
			t.Fatal("model should not be called")
			return "", nil
		})

		_, err := client.Evaluate(context.Background(), "", "answer", "")
		assert.ErrorIs(t, err, executor.ErrInvalidPayload)
	})

	t.Run("score_out_of_range_rejected", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(context.Context, string) (string, error) {
			return `{"score": 140, "correct": true, "feedback": "ok"}`, nil
		})

		_, err := client.Evaluate(context.Background(), "q", "a", "")
		assert.ErrorIs(t, err, executor.ErrInvalidResponse)
	})

	t.Run("missing_feedback_rejected", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(context.Context, string) (string, error) {
			return `{"score": 80, "correct": true, "feedback": ""}`, nil
		})

		_, err := client.Evaluate(context.Background(), "q", "a", "")
		assert.ErrorIs(t, err, executor.ErrInvalidResponse)
	})

	t.Run("unclassified_error_exhausts_retries", func(t *testing.T) {
		t.Parallel()

		calls := 0
		client := newTestClient(t, func(context.Context, string) (string, error) {
			calls++
			return "", errors.New("provider hiccup")
		})

		_, err := client.Evaluate(context.Background(), "q", "a", "")
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}
