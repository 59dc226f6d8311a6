package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

type observation struct {
	method, route string
	code, bytes   int
	traceID       string
}

type fakeRecorder struct {
	mu       sync.Mutex
	obs      []observation
	inFlight int
	peak     int
}

func (f *fakeRecorder) ObserveRequest(ctx context.Context, method, route string, code, bytes int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := observation{method: method, route: route, code: code, bytes: bytes}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		o.traceID = sc.TraceID().String()
	}
	f.obs = append(f.obs, o)
}

func (f *fakeRecorder) AddInFlight(delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight += delta
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
}

func TestMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/api/v1/actors/{name}/plan", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tasks":[]}`))
	})
	r.Post("/api/v1/actors/{name}/actions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		method, path string
		want         *observation
	}{
		{http.MethodGet, "/api/v1/actors/alice/plan", &observation{method: "GET", route: "/api/v1/actors/{name}/plan", code: 200, bytes: 12}},
		{http.MethodGet, "/api/v1/actors/bob/plan", &observation{method: "GET", route: "/api/v1/actors/{name}/plan", code: 200, bytes: 12}},
		{http.MethodPost, "/api/v1/actors/alice/actions", &observation{method: "POST", route: "/api/v1/actors/{name}/actions", code: 202}},
		{http.MethodGet, "/no/such/route", &observation{method: "GET", route: unmatchedRoute, code: 404, bytes: 19}},
		{http.MethodGet, "/metrics", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec.obs = nil
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			if tt.want == nil {
				if len(rec.obs) != 0 {
					t.Errorf("observed %+v, want nothing", rec.obs)
				}
				return
			}
			if len(rec.obs) != 1 || rec.obs[0] != *tt.want {
				t.Errorf("observed %+v, want %+v", rec.obs, *tt.want)
			}
		})
	}
	if rec.inFlight != 0 || rec.peak != 1 {
		t.Errorf("in flight = %d, peak = %d", rec.inFlight, rec.peak)
	}
}

func TestMetrics_Panic(t *testing.T) {
	rec := &fakeRecorder{}
	handler := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("planner exploded")
	}))

	defer func() {
		if recover() == nil {
			t.Error("panic was swallowed")
		}
		if len(rec.obs) != 1 || rec.obs[0].code != http.StatusInternalServerError {
			t.Errorf("observed %+v, want one 500", rec.obs)
		}
		if rec.inFlight != 0 {
			t.Errorf("in flight = %d after panic", rec.inFlight)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/actors", nil))
}

func TestMetrics_PassesSpanContext(t *testing.T) {
	rec := &fakeRecorder{}
	handler := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		SpanID:     trace.SpanID{2, 2, 2, 2, 2, 2, 2, 2},
		TraceFlags: trace.FlagsSampled,
	})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(rec.obs) != 1 || rec.obs[0].traceID != sc.TraceID().String() {
		t.Errorf("observed %+v", rec.obs)
	}
}
