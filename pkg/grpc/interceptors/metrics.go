package interceptors

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics holds the gRPC server collectors.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
	messages *prometheus.CounterVec
}

// NewMetrics registers the gRPC collectors with reg, reusing collectors a
// previous call already registered there. A nil reg means the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		calls: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dayloop",
			Subsystem: "grpc",
			Name:      "calls_total",
			Help:      "gRPC calls by method, kind and status code.",
		}, []string{"method", "kind", "code"})),
		duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dayloop",
			Subsystem: "grpc",
			Name:      "call_duration_seconds",
			Help:      "gRPC call duration; for streams, the time the stream stayed open.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120, 600},
		}, []string{"method", "kind"})),
		inflight: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dayloop",
			Subsystem: "grpc",
			Name:      "in_flight",
			Help:      "gRPC calls and streams currently open.",
		}, []string{"method"})),
		messages: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dayloop",
			Subsystem: "grpc",
			Name:      "stream_messages_total",
			Help:      "Messages received and sent on gRPC streams.",
		}, []string{"method", "direction"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observe(method, kind string, start time.Time, err error) {
	m.calls.WithLabelValues(method, kind, status.Code(err).String()).Inc()
	m.duration.WithLabelValues(method, kind).Observe(time.Since(start).Seconds())
}

// MetricsUnaryInterceptor records unary calls in m.
func MetricsUnaryInterceptor(m *Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		gauge := m.inflight.WithLabelValues(info.FullMethod)
		gauge.Inc()
		defer gauge.Dec()

		resp, err := handler(ctx, req)
		m.observe(info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// MetricsStreamInterceptor records streams and their message counts in m.
func MetricsStreamInterceptor(m *Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		gauge := m.inflight.WithLabelValues(info.FullMethod)
		gauge.Inc()
		defer gauge.Dec()

		counted := &countingStream{ServerStream: ss}
		err := handler(srv, counted)
		m.observe(info.FullMethod, "stream", start, err)
		m.messages.WithLabelValues(info.FullMethod, "recv").Add(float64(counted.recv))
		m.messages.WithLabelValues(info.FullMethod, "sent").Add(float64(counted.sent))
		return err
	}
}

type countingStream struct {
	grpc.ServerStream
	recv, sent int
}

func (s *countingStream) RecvMsg(msg any) error {
	err := s.ServerStream.RecvMsg(msg)
	if err == nil {
		s.recv++
	}
	return err
}

func (s *countingStream) SendMsg(msg any) error {
	err := s.ServerStream.SendMsg(msg)
	if err == nil {
		s.sent++
	}
	return err
}
