// Package tracing installs the process-wide OpenTelemetry tracer provider
// used by the planner, memory pipeline, scheduler and HTTP/gRPC surfaces.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// ShutdownFunc flushes buffered spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// ServiceInfo identifies the process in exported spans.
type ServiceInfo struct {
	Name       string
	Version    string
	InstanceID string
	// Actors are the simulated actors this process hosts.
	Actors []string
}

func (s ServiceInfo) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.Name),
		semconv.ServiceVersion(s.Version),
	}
	if s.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(s.InstanceID))
	}
	if len(s.Actors) > 0 {
		attrs = append(attrs, attribute.StringSlice("dayloop.actors", s.Actors))
	}
	return attrs
}

// newExporter is swapped out in tests.
var newExporter = func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	return otlptracegrpc.New(ctx, exporterOptions(cfg)...)
}

func exporterOptions(cfg config.TracingConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(collectorHost(cfg.Endpoint)),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return opts
}

// failureLogInterval spaces out warnings about an unreachable collector.
const failureLogInterval = 30 * time.Second

// lossyExporter drops batches the collector rejects. A tracing outage must
// not fail the batch processor or fill the log, so failures are counted
// and reported at most once per failureLogInterval.
type lossyExporter struct {
	sdktrace.SpanExporter
	endpoint string

	dropped atomic.Int64
	warn    rate.Sometimes
	log     func(msg string, args ...any)
}

func newLossyExporter(exp sdktrace.SpanExporter, endpoint string) *lossyExporter {
	return &lossyExporter{
		SpanExporter: exp,
		endpoint:     endpoint,
		warn:         rate.Sometimes{First: 1, Interval: failureLogInterval},
		log:          logger.Warn,
	}
}

func (e *lossyExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := e.SpanExporter.ExportSpans(ctx, spans)
	if err == nil {
		return nil
	}
	total := e.dropped.Add(int64(len(spans)))
	e.warn.Do(func() {
		e.log("dropping spans, collector unavailable",
			"endpoint", e.endpoint, "batch", len(spans), "dropped_total", total, "error", err)
	})
	return nil
}

// Dropped is the number of spans lost to export failures.
func (e *lossyExporter) Dropped() int64 { return e.dropped.Load() }

// Init installs the global tracer provider and the W3C trace-context and
// baggage propagators. With tracing disabled the provider is a no-op, but
// propagation stays on so remote collaborators still join the caller's
// trace.
func Init(ctx context.Context, cfg config.TracingConfig, info ServiceInfo) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	host := collectorHost(cfg.Endpoint)
	switch {
	case host == "":
		return nil, errors.New("tracing: endpoint is required")
	case cfg.Timeout <= 0:
		return nil, errors.New("tracing: timeout must be positive")
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create %s exporter: %w", cfg.Exporter, err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(info.attributes()...))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(newLossyExporter(exp, host)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.Sampler, cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		flushErr := tp.ForceFlush(ctx)
		if err := errors.Join(flushErr, tp.Shutdown(ctx)); err != nil {
			return fmt.Errorf("tracing: shutdown: %w", err)
		}
		return nil
	}, nil
}

// sampler maps a sampler name to its implementation. Unknown names get
// the parent-based ratio sampler.
func sampler(name string, ratio float64) sdktrace.Sampler {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// collectorHost reduces an endpoint that may be written as a URL to the
// host:port the gRPC exporter dials.
func collectorHost(endpoint string) string {
	raw := strings.TrimSpace(endpoint)
	if !strings.Contains(raw, "://") {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
