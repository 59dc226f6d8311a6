// Package middleware holds the HTTP middleware of the actor API.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goclaw/dayloop/pkg/logger"
)

// quietPaths are probed constantly and only logged at debug level.
var quietPaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// Logger logs one line per request. The level follows the status: 5xx is
// an error, 4xx a warning. The route pattern is logged instead of the raw
// path when one matched, and the actor name when the route has one.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", ww.BytesWritten(),
				"remote_addr", r.RemoteAddr,
			}
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					attrs = append(attrs, "route", pattern)
				}
				if name := rc.URLParam("name"); name != "" {
					attrs = append(attrs, "actor", name)
				}
			}

			ctx := r.Context()
			switch {
			case status >= http.StatusInternalServerError:
				log.ErrorContext(ctx, "http request", attrs...)
			case status >= http.StatusBadRequest:
				log.WarnContext(ctx, "http request", attrs...)
			case quietPaths[r.URL.Path]:
				log.DebugContext(ctx, "http request", attrs...)
			default:
				log.InfoContext(ctx, "http request", attrs...)
			}
		})
	}
}
