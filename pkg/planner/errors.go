package planner

import (
	"errors"
	"fmt"
)

// InputInvalidError is returned before any state is touched when a caller
// passes a nil plan, a nil decision or an unknown decision kind.
type InputInvalidError struct {
	Field  string
	Reason string
}

func (e *InputInvalidError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// IsInputInvalidError returns true if err is or wraps an InputInvalidError.
func IsInputInvalidError(err error) bool {
	var target *InputInvalidError
	return errors.As(err, &target)
}

// CollaboratorError wraps a failure of an external planning collaborator.
// The reviser absorbs it; expansion calls return it to the caller.
type CollaboratorError struct {
	Collaborator string
	Cause        error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s failed: %v", e.Collaborator, e.Cause)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Cause
}

// IsCollaboratorError returns true if err is or wraps a CollaboratorError.
func IsCollaboratorError(err error) bool {
	var target *CollaboratorError
	return errors.As(err, &target)
}

var errNotConfigured = errors.New("not configured")

func panicError(v any) error {
	return fmt.Errorf("panic: %v", v)
}
