package session

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	ErrInvalidDuration = errors.New("session duration must be positive")
	ErrMissingService  = errors.New("session requires a submission service")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrNotActive       = errors.New("session is not active")
	ErrUnknownQuestion = errors.New("question is not part of this test")
	ErrNothingToRetry  = errors.New("no failed submission to retry")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
)

// StartError reports a failed start call. The session stays NotStarted and
// Start may be called again.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start attempt: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Retryable is always true for start failures.
func (e *StartError) Retryable() bool { return true }

// SubmitError reports a failed submit call. Reverted is true when the session
// went back to Active (manual path); otherwise the payload is kept for
// RetrySubmit.
type SubmitError struct {
	Kind     model.AttemptStatus
	Reverted bool
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attempt (%s): %v", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
