package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/actor"
	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/grpc/interceptors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// startServer serves an empty actor service on a loopback port.
func startServer(t *testing.T, mutate func(*Config), opts ...Option) (*Server, *ggrpc.ClientConn) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	srv.RegisterService(&ActorServiceDesc, NewActorService(actor.NewRegistry(), eventbus.NewMemoryBus()))
	require.NoError(t, srv.Start())

	conn, err := ggrpc.NewClient(srv.Address(), ggrpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, conn
}

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

func TestServer_HealthReportsActorService(t *testing.T) {
	_, conn := startServer(t, nil)
	ctx := testContext(t)

	hc := grpc_health_v1.NewHealthClient(conn)
	for _, service := range []string{"", ActorServiceName} {
		resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		require.NoError(t, err, "service %q", service)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus(), "service %q", service)
	}
}

func TestServer_Tracing(t *testing.T) {
	tests := []struct {
		name    string
		tracing bool
	}{
		{name: "enabled", tracing: true},
		{name: "disabled", tracing: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := withSpanRecorder(t)
			srv, conn := startServer(t, func(c *Config) { c.Tracing = tt.tracing })

			_, err := NewActorClient(conn).ListActors(testContext(t))
			require.NoError(t, err)

			// The span ends after the response is written; stop the server
			// so every call has finished before looking.
			require.NoError(t, srv.Stop(testContext(t)))

			var names []string
			for _, s := range rec.Ended() {
				names = append(names, s.Name())
			}
			if tt.tracing {
				assert.Contains(t, names, "/"+ActorServiceName+"/ListActors")
			} else {
				assert.Empty(t, names)
			}
		})
	}
}

func TestServer_RequestIDHeader(t *testing.T) {
	_, conn := startServer(t, nil)

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(testContext(t), interceptors.RequestIDKey, "ctl-9")
	_, err := NewActorClient(conn).ListActors(ctx, ggrpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"ctl-9"}, header.Get(interceptors.RequestIDKey))
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, conn := startServer(t, nil, WithMetrics(interceptors.NewMetrics(reg)))

	_, err := NewActorClient(conn).ListActors(testContext(t))
	require.NoError(t, err)
	require.NoError(t, srv.Stop(testContext(t)))

	n, err := testutil.GatherAndCount(reg, "dayloop_grpc_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServer_Lifecycle(t *testing.T) {
	srv, err := New(&Config{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Address())

	require.NoError(t, srv.Stop(context.Background()), "stop before start")
	require.NoError(t, srv.Start())
	assert.NotEqual(t, "127.0.0.1:0", srv.Address())
	assert.Error(t, srv.Start(), "second start")
	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()), "second stop")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "no address", mutate: func(c *Config) { c.Address = "" }, wantErr: true},
		{name: "negative message size", mutate: func(c *Config) { c.MaxRecvMsgSize = -1 }, wantErr: true},
		{name: "tls without key", mutate: func(c *Config) { c.TLS = &TLSConfig{CertFile: "server.pem"} }, wantErr: true},
		{name: "mtls without ca", mutate: func(c *Config) {
			c.TLS = &TLSConfig{CertFile: "server.pem", KeyFile: "server.key", ClientAuth: true}
		}, wantErr: true},
		{name: "tls", mutate: func(c *Config) { c.TLS = &TLSConfig{CertFile: "server.pem", KeyFile: "server.key"} }},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit = &RateLimitConfig{Burst: 5} }, wantErr: true},
		{name: "rate", mutate: func(c *Config) { c.RateLimit = &RateLimitConfig{RequestsPerSecond: 2, Burst: 5} }},
		{name: "ping timeout too long", mutate: func(c *Config) { c.Keepalive.Timeout = 2 * time.Minute }, wantErr: true},
		{name: "no keepalive", mutate: func(c *Config) { c.Keepalive = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := New(nil)
	assert.Error(t, err)
}
