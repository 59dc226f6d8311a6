package middleware

import (
	"context"
	"net/http"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds ids accepted from clients; they end up in logs,
// span attributes and error bodies.
const maxRequestIDLen = 128

type contextKey struct{ name string }

var requestIDKey = &contextKey{"request_id"}

// RequestID propagates a client-supplied request id or assigns a new one.
// Ids that are too long or contain non-printable bytes are replaced. The id
// is also attached to the context's log attributes.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := logger.ContextWith(WithRequestID(r.Context(), id), "request_id", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
