package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/retry"
)

// generateFn is the seam between prompt handling and the Gemini API.
// Tests replace it to exercise parsing and classification without a
// network dependency.
type generateFn func(ctx context.Context, prompt string) (string, error)

// Client calls the Gemini API to generate training documents and grade
// answers. It implements executor.DocumentGenerator and
// executor.AnswerEvaluator.
type Client struct {
	logger       *slog.Logger
	cfg          config.LLMConfig
	docTemplate  *template.Template
	evalTemplate *template.Template
	generate     generateFn
}

// NewClient creates a Client from the LLM configuration.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	docTemplate, err := template.New("document").Parse(documentPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse document prompt template: %v", ErrInvalidConfig, err)
	}
	evalTemplate, err := template.New("evaluation").Parse(evaluationPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse evaluation prompt template: %v", ErrInvalidConfig, err)
	}

	apiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	c := &Client{
		logger:       logger,
		cfg:          cfg,
		docTemplate:  docTemplate,
		evalTemplate: evalTemplate,
	}
	c.generate = func(ctx context.Context, prompt string) (string, error) {
		return c.callModel(ctx, apiClient, prompt)
	}
	return c, nil
}

// callModel makes one Gemini API call and classifies the outcome.
// Transport and server errors are transient; a safety block or an
// unusable response is permanent.
func (c *Client) callModel(ctx context.Context, apiClient *genai.Client, prompt string) (string, error) {
	resp, err := apiClient.Models.GenerateContent(ctx, c.cfg.ModelName,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("%w: %v", executor.ErrTransient, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", executor.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: %v", executor.ErrInvalidResponse, ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", executor.ErrInvalidResponse)
	}
	return text, nil
}

// retryConfig builds the backoff policy from the LLM settings.
func (c *Client) retryConfig() retry.Config {
	maxRetries := c.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delaySeconds := c.cfg.RetryDelaySeconds
	if delaySeconds < 1 {
		delaySeconds = 2
	}
	return retry.Config{
		MaxAttempts:  maxRetries + 1,
		InitialDelay: time.Duration(delaySeconds) * time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
		Jitter:       true,
		Retryable:    executor.IsRetryable,
	}
}

// renderAndCall renders the prompt, calls the model with retry, and
// unmarshals the JSON response into out.
func (c *Client) renderAndCall(
	ctx context.Context,
	tmpl *template.Template,
	data any,
	out any,
) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute prompt template %q: %w", tmpl.Name(), err)
	}
	prompt := buf.String()
	if prompt == "" {
		return ErrEmptyPrompt
	}

	c.logger.DebugContext(ctx, "calling gemini",
		"template", tmpl.Name(),
		"prompt_length", len(prompt),
		"model", c.cfg.ModelName)

	var text string
	err := retry.Do(ctx, c.retryConfig(), func(ctx context.Context) error {
		var callErr error
		text, callErr = c.generate(ctx, prompt)
		return callErr
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: failed to parse model response: %v", executor.ErrInvalidResponse, err)
	}
	return nil
}

// GenerateDocument produces chapter markers, a procedure document and
// key points from the transcript.
func (c *Client) GenerateDocument(
	ctx context.Context,
	transcript, title string,
) (*domain.DocumentGenerationResult, error) {
	if transcript == "" {
		return nil, fmt.Errorf("%w: transcript cannot be empty", executor.ErrInvalidPayload)
	}

	var result domain.DocumentGenerationResult
	err := c.renderAndCall(ctx, c.docTemplate,
		documentPromptData{Transcript: transcript, Title: title}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Chapters) == 0 && len(result.Procedure) == 0 && len(result.KeyPoints) == 0 {
		return nil, fmt.Errorf("%w: model returned an empty document", executor.ErrInvalidResponse)
	}

	c.logger.InfoContext(ctx, "document generated",
		"chapters", len(result.Chapters),
		"procedure_steps", len(result.Procedure),
		"key_points", len(result.KeyPoints))
	return &result, nil
}

// Evaluate grades a trainee's answer against the question and its
// source material.
func (c *Client) Evaluate(
	ctx context.Context,
	question, answer, material string,
) (*domain.AnswerEvaluationResult, error) {
	if question == "" || answer == "" {
		return nil, fmt.Errorf("%w: question and answer are required", executor.ErrInvalidPayload)
	}

	var result domain.AnswerEvaluationResult
	err := c.renderAndCall(ctx, c.evalTemplate,
		evaluationPromptData{Question: question, Answer: answer, Material: material}, &result)
	if err != nil {
		return nil, err
	}
	if result.Score < 0 || result.Score > 100 {
		return nil, fmt.Errorf("%w: score %d outside [0,100]", executor.ErrInvalidResponse, result.Score)
	}
	if result.Feedback == "" {
		return nil, fmt.Errorf("%w: missing feedback", executor.ErrInvalidResponse)
	}

	c.logger.InfoContext(ctx, "answer evaluated",
		"score", result.Score,
		"correct", result.Correct)
	return &result, nil
}

var (
	_ executor.DocumentGenerator = (*Client)(nil)
	_ executor.AnswerEvaluator   = (*Client)(nil)
)
