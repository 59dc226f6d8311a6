package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dayloop_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"method", "route", "code"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: cfg.HTTPDurationBuckets,
		},
		[]string{"method", "route"},
	)
	m.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dayloop_http_response_bytes",
			Help:    "HTTP response body size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"route"},
	)
	m.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dayloop_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.httpResponseSize, m.httpInFlight)
}

// ObserveRequest records a finished HTTP request. A sampled span in ctx
// becomes the latency exemplar.
func (m *Manager) ObserveRequest(ctx context.Context, method, route string, code, bytes int, d time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpResponseSize.WithLabelValues(route).Observe(float64(bytes))

	obs := m.httpDuration.WithLabelValues(method, route)
	if eo, ok := obs.(prometheus.ExemplarObserver); ok {
		if labels := exemplar(ctx); labels != nil {
			eo.ObserveWithExemplar(d.Seconds(), labels)
			return
		}
	}
	obs.Observe(d.Seconds())
}

// AddInFlight moves the in-flight request gauge by delta.
func (m *Manager) AddInFlight(delta int) {
	if !m.enabled {
		return
	}
	m.httpInFlight.Add(float64(delta))
}

func exemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
