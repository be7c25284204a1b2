// Package retry provides a single retry-with-exponential-backoff helper
// used everywhere the application makes a transient-prone external call:
// chunk transfers, provider API calls and trigger invocations all share
// the same policy surface instead of re-implementing backoff at each site.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Retryabler is implemented by errors that carry their own retryability
// verdict, such as upload transport errors.
type Retryabler interface {
	Retryable() bool
}

// Config parameterizes a retry loop.
type Config struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between any two attempts.
	MaxDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64

	// Jitter, when true, randomizes each delay to between 50% and 100%
	// of its computed value to avoid thundering-herd retries.
	Jitter bool

	// Retryable decides whether an error is worth retrying. When nil,
	// IsRetryable is used.
	Retryable func(error) bool
}

// DefaultConfig returns a Config with bounded attempts and delays
// suitable for short-lived network calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// IsRetryable reports whether an error opts into retrying via the
// Retryabler interface. Errors that don't implement it are not retried;
// callers with richer taxonomies pass their own predicate.
func IsRetryable(err error) bool {
	var r Retryabler
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Do invokes fn until it succeeds, the retryability predicate rejects
// the error, the attempt budget is exhausted, or the context is done.
// The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt, rng)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// backoffDelay computes the delay before the next attempt:
// initial * multiplier^attempt, capped at MaxDelay, optionally jittered.
func backoffDelay(cfg Config, attempt int, rng *rand.Rand) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay *= 0.5 + rng.Float64()*0.5
	}
	return time.Duration(delay)
}
