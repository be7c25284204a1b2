package api

import (
	"errors"
	"net/http"

	"github.com/traindeck/traindeck-api/internal/service"
	"github.com/traindeck/traindeck-api/internal/store"
)

// ErrJobNotOwned is returned when a caller addresses a job belonging to
// another user.
var ErrJobNotOwned = errors.New("job not owned by caller")

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrJobNotOwned):
		return http.StatusForbidden

	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrTerminalState),
		errors.Is(err, store.ErrClaimConflict):
		return http.StatusConflict

	case errors.Is(err, service.ErrInvalidJobInput),
		errors.Is(err, service.ErrInvalidProgress),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns the sanitized message for an error. Raw
// error strings never reach the client.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, ErrJobNotOwned):
		return "You do not have access to this job"

	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrTerminalState):
		return "Job has already finished"

	case errors.Is(err, store.ErrClaimConflict):
		return "Job is being processed"

	case errors.Is(err, service.ErrInvalidJobInput):
		return "Invalid job request"

	case errors.Is(err, service.ErrInvalidProgress):
		return "Invalid progress value"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}
