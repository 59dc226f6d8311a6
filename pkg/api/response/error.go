package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/goclaw/dayloop/pkg/action"
	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/goclaw/dayloop/pkg/plan"
	"github.com/goclaw/dayloop/pkg/planner"
	"github.com/goclaw/dayloop/pkg/storage"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeActorNotFound      = "ACTOR_NOT_FOUND"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUnknownActionKind  = "UNKNOWN_ACTION_KIND"
	ErrCodeInvalidParams      = "INVALID_ACTION_PARAMS"
	ErrCodeActorClosed        = "ACTOR_CLOSED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
)

// Classify maps an error from the actor stack to a status and code.
// Anything unrecognised is a 500.
func Classify(err error) (int, string) {
	var paramsErr *plan.ParamsError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case actor.IsUnknownActorError(err):
		return http.StatusNotFound, ErrCodeActorNotFound
	case storage.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound
	case action.IsUnknownKindError(err):
		return http.StatusBadRequest, ErrCodeUnknownActionKind
	case errors.As(err, &paramsErr):
		return http.StatusBadRequest, ErrCodeInvalidParams
	case planner.IsInputInvalidError(err), memory.IsInputInvalidError(err):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case errors.Is(err, action.ErrSchedulerClosed):
		return http.StatusServiceUnavailable, ErrCodeActorClosed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeGatewayTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternalServer
	}
}
