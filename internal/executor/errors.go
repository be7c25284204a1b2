package executor

import (
	"context"
	"errors"
)

// The failure taxonomy shared by all executors. The processor uses
// IsRetryable to decide between scheduling a retry and failing the job;
// everything else is terminal on first occurrence.
var (
	// ErrInvalidPayload is returned when a job payload does not match the
	// shape its type requires. Never retried.
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrUnauthorized is returned when a provider rejects our credentials.
	// Never retried; retrying with the same credentials cannot succeed.
	ErrUnauthorized = errors.New("provider rejected credentials")

	// ErrNotFound is returned when a referenced resource (audio file,
	// staged upload) does not exist. Never retried.
	ErrNotFound = errors.New("referenced resource not found")

	// ErrTransient is returned for failures that may resolve on their own:
	// network errors, timeouts and provider 5xx responses. Retried within
	// the job's retry budget.
	ErrTransient = errors.New("transient external failure")

	// ErrQuotaExceeded is returned when a provider-side limit is reached.
	// Surfaced to the user and not retried by the processor.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrInvalidResponse is returned when a provider response cannot be
	// parsed or is malformed. Not retried; the same request would yield
	// the same response.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrUnknownJobType is returned by the registry when no executor is
	// registered for a job's type.
	ErrUnknownJobType = errors.New("unknown job type")
)

// Failure kind labels recorded in a job's error payload so clients can
// render failures without parsing error strings.
const (
	KindValidation = "validation"
	KindAuth       = "unauthorized"
	KindNotFound   = "not_found"
	KindTransient  = "transient"
	KindQuota      = "quota_exceeded"
	KindCancelled  = "cancelled"
	KindInternal   = "internal"
)

// Kind classifies an executor error into one of the failure kind labels.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidResponse):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindAuth
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the processor should spend retry budget on
// the error. Unclassified errors are treated as transient so a provider
// hiccup without a precise mapping still gets its retries, and work
// interrupted by cancellation is resumed rather than failed.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case KindTransient, KindInternal, KindCancelled:
		return true
	default:
		return false
	}
}
