package api

import (
	"errors"
	"fmt"
)

// ActivityError is returned by the activity runtime boundary. Retryable
// governs whether the engine may try the task again
type ActivityError struct {
	Err       error
	Retryable bool
}

var (
	ErrSignalRejected    = errors.New("signal rejected")
	ErrAlreadyResolved   = fmt.Errorf("%w: already resolved", ErrSignalRejected)
	ErrNotAwaitingSignal = fmt.Errorf(
		"%w: task not awaiting signal", ErrSignalRejected,
	)
)

// NewActivityError wraps err as an ActivityError
func NewActivityError(err error, retryable bool) *ActivityError {
	return &ActivityError{Err: err, Retryable: retryable}
}

// PermanentError wraps err as a non-retryable ActivityError
func PermanentError(err error) *ActivityError {
	return NewActivityError(err, false)
}

// RetryableError wraps err as a retryable ActivityError
func RetryableError(err error) *ActivityError {
	return NewActivityError(err, true)
}

func (e *ActivityError) Error() string {
	if e.Err == nil {
		return "activity error"
	}
	return e.Err.Error()
}

func (e *ActivityError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err permits another attempt. Errors that are
// not ActivityErrors are considered retryable
func IsRetryable(err error) bool {
	var ae *ActivityError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}
