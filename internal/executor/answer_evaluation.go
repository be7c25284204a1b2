package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/traindeck/traindeck-api/internal/domain"
)

// AnswerEvaluator is the provider boundary for grading a trainee's
// answer against the question and its source material.
type AnswerEvaluator interface {
	Evaluate(
		ctx context.Context,
		question, answer, material string,
	) (*domain.AnswerEvaluationResult, error)
}

// AnswerEvaluationExecutor handles answer evaluation jobs.
type AnswerEvaluationExecutor struct {
	evaluator AnswerEvaluator
}

// NewAnswerEvaluationExecutor creates an AnswerEvaluationExecutor.
func NewAnswerEvaluationExecutor(evaluator AnswerEvaluator) *AnswerEvaluationExecutor {
	return &AnswerEvaluationExecutor{evaluator: evaluator}
}

// Type returns the job type this executor handles.
func (e *AnswerEvaluationExecutor) Type() domain.JobType {
	return domain.JobTypeAnswerEvaluation
}

// Execute grades the job's answer and returns the feedback.
func (e *AnswerEvaluationExecutor) Execute(
	ctx context.Context,
	job *domain.Job,
	report ProgressFunc,
) (json.RawMessage, error) {
	var payload domain.AnswerEvaluationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Question == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingQuestion)
	}
	if payload.Answer == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrMissingAnswer)
	}

	report(20, "Evaluating answer")

	result, err := e.evaluator.Evaluate(ctx, payload.Question, payload.Answer, payload.Context)
	if err != nil {
		return nil, fmt.Errorf("answer evaluation failed: %w", err)
	}
	if result.Score < 0 || result.Score > 100 {
		return nil, fmt.Errorf("%w: score %d outside [0,100]", ErrInvalidResponse, result.Score)
	}

	report(90, "Evaluation finished")

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation result: %w", err)
	}
	return out, nil
}

var _ Executor = (*AnswerEvaluationExecutor)(nil)
