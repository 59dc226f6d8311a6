// Package response writes the API's JSON bodies.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data with statusCode. A nil data writes headers only.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	// Headers are gone by now; an encode failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes an ErrorResponse.
func Error(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	ErrorWithDetails(w, statusCode, code, message, nil, requestID)
}

// ErrorWithDetails writes an ErrorResponse carrying extra fields, such as
// the failing field names of a validation error.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]any, requestID string) {
	JSON(w, statusCode, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}})
}
