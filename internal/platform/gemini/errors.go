package gemini

import "errors"

var (
	// ErrInvalidConfig is returned when the client cannot be constructed
	// from the provided configuration.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyPrompt is returned when a prompt renders to an empty string.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrContentBlocked is returned when the model refuses the request on
	// safety grounds. Never retried.
	ErrContentBlocked = errors.New("content blocked by safety filters")
)
