package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flaggedErr struct {
	retryable bool
}

func (e *flaggedErr) Error() string   { return "flagged error" }
func (e *flaggedErr) Retryable() bool { return e.retryable }

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds_first_attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries_transient_then_succeeds", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &flaggedErr{retryable: true}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("non_retryable_propagates_immediately", func(t *testing.T) {
		calls := 0
		permanent := &flaggedErr{retryable: false}
		err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts_attempt_budget", func(t *testing.T) {
		calls := 0
		transient := &flaggedErr{retryable: true}
		err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("custom_predicate", func(t *testing.T) {
		sentinel := errors.New("timeout")
		cfg := fastConfig()
		cfg.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

		calls := 0
		err := Do(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return sentinel
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("context_cancellation_stops_retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := fastConfig()
		cfg.InitialDelay = time.Hour // force the loop to wait
		cfg.MaxDelay = time.Hour     // keep the cap from shrinking the wait

		calls := 0
		done := make(chan error, 1)
		go func() {
			done <- Do(ctx, cfg, func(ctx context.Context) error {
				calls++
				return &flaggedErr{retryable: true}
			})
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&flaggedErr{retryable: true}))
	assert.False(t, IsRetryable(&flaggedErr{retryable: false}))
	assert.False(t, IsRetryable(errors.New("plain")))

	// Wrapped flagged errors are still recognized.
	wrapped := &flaggedErr{retryable: true}
	assert.True(t, IsRetryable(errors.Join(errors.New("outer"), wrapped)))
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10,
	}

	start := time.Now()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return &flaggedErr{retryable: true}
	})
	// Four waits, each capped at 2ms; generous upper bound for CI noise.
	assert.Less(t, time.Since(start), time.Second)
}
