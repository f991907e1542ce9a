package provider

import "errors"

// Common errors returned by provider clients.
var (
	// ErrCreateRejected is returned when the provider refuses to create
	// a task. The wrapped message carries the provider's code and text.
	ErrCreateRejected = errors.New("provider rejected task creation")

	// ErrTaskNotFound is returned when a describe call references a task
	// the provider does not know.
	ErrTaskNotFound = errors.New("provider task not found")

	// ErrInvalidResponse is returned when a provider response cannot be
	// parsed or is missing required fields.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrInvalidConfig is returned when the client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid provider client configuration")
)
