package action

import (
	"errors"
	"fmt"

	"github.com/goclaw/dayloop/pkg/plan"
)

var (
	// ErrInterrupted is reported when a run is cancelled before finishing,
	// either by preemption or by scheduler shutdown.
	ErrInterrupted = errors.New("action interrupted")

	// ErrSchedulerClosed is reported for submissions after Close.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// HandlerError wraps an error returned (or a panic raised) by a handler.
type HandlerError struct {
	Kind  plan.ActionKind
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Kind, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// IsHandlerError returns true if err is or wraps a HandlerError.
func IsHandlerError(err error) bool {
	var target *HandlerError
	return errors.As(err, &target)
}

// UnknownKindError is returned when no handler is registered for a kind.
type UnknownKindError struct {
	Kind plan.ActionKind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("no handler registered for action %q", string(e.Kind))
}

// IsUnknownKindError returns true if err is or wraps an UnknownKindError.
func IsUnknownKindError(err error) bool {
	var target *UnknownKindError
	return errors.As(err, &target)
}
