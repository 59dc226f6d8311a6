package memory

import (
	"errors"
	"fmt"
)

// InputInvalidError reports a malformed request that was rejected before
// any state was changed.
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

// StageError reports that a pipeline stage fell back to its default.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("memory stage %s degraded: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// IsStageError returns true if err is or wraps a StageError.
func IsStageError(err error) bool {
	var target *StageError
	return errors.As(err, &target)
}

// Pipeline stage names.
const (
	StageMaintain    = "maintain"
	StageConsolidate = "consolidate"
	StageFilter      = "filter"
	StagePersist     = "persist"
)

var errNoCollaborator = errors.New("no collaborator configured")

// callSafely runs fn and converts a panic into an error.
func callSafely(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
