package domain

import (
	"errors"
	"fmt"
)

// FailureReason is the short, user-facing code attached to a terminal
// job failure. The UI shows the reason compactly and the diagnostic
// message on demand; the core never dictates presentation.
type FailureReason string

const (
	// FailureInvalidInput: the request was rejected before any remote call
	// because required input (prompt or images) was missing.
	FailureInvalidInput FailureReason = "invalidInput"

	// FailureOnlyT2V: the model accepts text input only and the request
	// carried reference images. No provider call is made.
	FailureOnlyT2V FailureReason = "onlyT2V"

	// FailureTooManyImages: the request carried more reference images than
	// the model supports. No provider call is made.
	FailureTooManyImages FailureReason = "tooManyImages"

	// FailureLastFrameUnsupported: a last-frame image was supplied to a
	// model that cannot use one. No provider call is made.
	FailureLastFrameUnsupported FailureReason = "lastFrameUnsupported"

	// FailureUpload: a reference image could not be uploaded. This aborts
	// the whole request, not a single job.
	FailureUpload FailureReason = "uploadFailed"

	// FailureCreate: the provider rejected task creation.
	FailureCreate FailureReason = "createFailed"

	// FailureExecution: the provider reported the task failed after it
	// had been accepted, possibly after partial progress.
	FailureExecution FailureReason = "generateFailed"

	// FailureTimeout: the poll loop reached its attempt or elapsed-time
	// ceiling without a terminal provider status.
	FailureTimeout FailureReason = "timeout"

	// FailureTaskLost: raised only by the reconciler for a job that never
	// received a provider task id and whose owning message is older than
	// the recovery grace window. Unrecoverable by construction.
	FailureTaskLost FailureReason = "taskLost"
)

// JobError is a terminal job failure: a short reason code plus a longer
// diagnostic message, kept separate so callers can render either view.
type JobError struct {
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NewJobError creates a JobError with the given reason and diagnostic message.
func NewJobError(reason FailureReason, message string) *JobError {
	return &JobError{Reason: reason, Message: message}
}

// Common validation errors for generation requests and job units.
var (
	ErrNoModelsSelected   = errors.New("at least one model must be selected")
	ErrInvalidModelCount  = errors.New("requested count must be positive")
	ErrEmptyRequestInput  = errors.New("request requires a prompt or reference images")
	ErrEmptyChatID        = errors.New("chat ID cannot be empty")
	ErrEmptyMessageID     = errors.New("message ID cannot be empty")
	ErrInvalidJobStatus   = errors.New("invalid job status")
	ErrTerminalTransition = errors.New("job is already in a terminal state")
	ErrUnknownModel       = errors.New("model is not in the catalog")
)
