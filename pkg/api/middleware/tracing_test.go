package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// withSpanRecorder installs a recording provider for the duration of t.
// Spans end synchronously, so the recorder holds them once ServeHTTP
// returns.
func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return rec
}

func tracedRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(Tracing("/health"))
	handler := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Get("/health", handler)
	r.Get("/api/v1/actors/{name}/plan", handler)
	return r
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_RouteSpan(t *testing.T) {
	rec := withSpanRecorder(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/actors/alice/plan", nil)
	req.Header.Set(RequestIDHeader, "req-trace")
	tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /api/v1/actors/{name}/plan" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v", span.SpanKind())
	}
	if span.Parent().IsValid() {
		t.Error("span has a parent without inbound headers")
	}

	want := map[string]string{
		"http.route":         "/api/v1/actors/{name}/plan",
		"dayloop.actor":      "alice",
		"dayloop.request_id": "req-trace",
	}
	for key, v := range want {
		got, ok := attrValue(span.Attributes(), key)
		if !ok || got.AsString() != v {
			t.Errorf("%s = %v, want %s", key, got.Emit(), v)
		}
	}
	if got, _ := attrValue(span.Attributes(), "http.response.status_code"); got.AsInt64() != http.StatusOK {
		t.Errorf("status attribute = %v", got.Emit())
	}
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	rec := withSpanRecorder(t)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xd, 0xa, 0x7, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(trace.ContextWithSpanContext(context.Background(), parent), carrier)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/actors/bob/plan", nil)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}
	tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := spans[0].Parent().TraceID(); got != parent.TraceID() {
		t.Errorf("trace id = %s, want %s", got, parent.TraceID())
	}
	if got := spans[0].Parent().SpanID(); got != parent.SpanID() {
		t.Errorf("parent span id = %s, want %s", got, parent.SpanID())
	}
}

func TestTracing_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   otelcodes.Code
	}{
		{name: "ok", status: http.StatusOK, want: otelcodes.Unset},
		{name: "client error", status: http.StatusNotFound, want: otelcodes.Unset},
		{name: "server error", status: http.StatusInternalServerError, want: otelcodes.Error},
		{name: "unavailable", status: http.StatusServiceUnavailable, want: otelcodes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := withSpanRecorder(t)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/actors/alice/plan", nil)
			tracedRouter(tt.status).ServeHTTP(httptest.NewRecorder(), req)

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if got := spans[0].Status().Code; got != tt.want {
				t.Errorf("span status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracing_SkipsProbes(t *testing.T) {
	rec := withSpanRecorder(t)
	tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if n := len(rec.Ended()); n != 0 {
		t.Errorf("got %d spans for /health, want 0", n)
	}
}
