package upload

import (
	"errors"
	"fmt"
)

// ErrUploadCancelled is returned when the upload's context is cancelled
// mid-transfer. Distinct from transport failure so callers can tell a
// user-initiated abort from a network problem.
var ErrUploadCancelled = errors.New("upload cancelled")

// ValidationError reports a file that was rejected before any bytes were
// sent. Validation failures are never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid upload %s: %s", e.Field, e.Message)
}

// UploadError reports a transfer failure and whether retrying the chunk
// could succeed. Network errors, timeouts and server 5xx responses are
// retryable; client 4xx responses are not.
type UploadError struct {
	StatusCode int
	Chunk      int
	retryable  bool
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upload chunk %d failed with status %d: %v", e.Chunk, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload chunk %d failed: %v", e.Chunk, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying.
func (e *UploadError) Retryable() bool { return e.retryable }
