package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// MetricsRecorder receives one observation per finished request.
type MetricsRecorder interface {
	ObserveRequest(ctx context.Context, method, route string, code, bytes int, d time.Duration)
	AddInFlight(delta int)
}

// Metrics records request counts, latency and response size labelled by
// chi route pattern. The scrape endpoint itself is not counted. A
// panicking handler is recorded as a 500 before the panic continues.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			recorder.AddInFlight(1)

			completed := false
			defer func() {
				recorder.AddInFlight(-1)
				code := ww.Status()
				switch {
				case !completed:
					code = http.StatusInternalServerError
				case code == 0:
					code = http.StatusOK
				}
				recorder.ObserveRequest(r.Context(), r.Method, routeLabel(r), code, ww.BytesWritten(), time.Since(start))
			}()

			next.ServeHTTP(ww, r)
			completed = true
		})
	}
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
