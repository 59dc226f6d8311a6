package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/goclaw/dayloop/pkg/api/response"
	"github.com/goclaw/dayloop/pkg/logger"
)

// Recovery turns a handler panic into a 500 and logs the stack. The panic
// value is not sent to the client. http.ErrAbortHandler is re-raised so
// net/http can abort the connection quietly.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}
				log.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer,
					"internal server error", requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
