package task

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("invalid generation parameters")
	ErrBusy       = errors.New("a generation task is already in flight")
	ErrClosed     = errors.New("task controller closed")
	ErrCanceled   = errors.New("task canceled")
	ErrTimedOut   = errors.New("task timed out")
)

// ValidationError rejects parameters before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SubmitError is a transport or server failure while submitting. Message is
// the text shown to the user.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit task: %v", e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// PollError is one failed status query. It ends the task only once the
// configured ceiling of consecutive failures is reached.
type PollError struct {
	TaskID  string
	Attempt int
	Err     error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll task %s (attempt %d): %v", e.TaskID, e.Attempt, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// TaskFailure is the service reporting the task as failed.
type TaskFailure struct {
	TaskID string
	Detail string
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Detail)
}
