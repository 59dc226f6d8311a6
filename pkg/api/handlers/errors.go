package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goclaw/dayloop/pkg/api/middleware"
	"github.com/goclaw/dayloop/pkg/api/response"
	"github.com/goclaw/dayloop/pkg/logger"
)

// writeError writes err with the status it maps to. Server errors are
// logged and their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error, what string) {
	status, code := response.Classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), what+" failed", "path", r.URL.Path, "error", err)
		message = what + " failed"
	}
	response.Error(w, status, code, message, requestID(r))
}

func badRequest(w http.ResponseWriter, r *http.Request, code, message string) {
	response.Error(w, http.StatusBadRequest, code, message, requestID(r))
}

// validationFailed reports a validator error with the offending fields
// listed under details.fields.
func validationFailed(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		badRequest(w, r, response.ErrCodeValidationFailed, err.Error())
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
		err.Error(), map[string]any{"fields": fields}, requestID(r))
}

func requestID(r *http.Request) string {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return id
	}
	return "unknown"
}
