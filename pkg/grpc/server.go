// Package grpc serves the actor service over gRPC: the server with its
// interceptor chain, the service itself and a small client.
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/goclaw/dayloop/pkg/grpc/interceptors"
	"github.com/goclaw/dayloop/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// Server runs a grpc.Server in the background. Services registered
// before Serve are installed when it starts.
type Server struct {
	config  *Config
	logger  logger.Logger
	metrics *interceptors.Metrics

	mu       sync.Mutex
	srv      *grpc.Server
	health   *health.Server
	listener net.Listener
	services []registration
}

type registration struct {
	desc *grpc.ServiceDesc
	impl any
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server and its interceptors.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records calls in m.
func WithMetrics(m *interceptors.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New validates cfg and returns a stopped server.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("grpc: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("grpc: invalid config: %w", err)
	}
	s := &Server{config: cfg, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("grpc: listen on %s: %w", s.config.Address, err)
	}
	if err := s.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("grpc: server already running")
	}

	opts, err := s.serverOptions()
	if err != nil {
		return err
	}
	srv := grpc.NewServer(opts...)
	for _, reg := range s.services {
		srv.RegisterService(reg.desc, reg.impl)
	}
	if s.config.Reflection {
		reflection.Register(srv)
	}
	if s.config.HealthCheck {
		s.health = health.NewServer()
		grpc_health_v1.RegisterHealthServer(srv, s.health)
		for _, reg := range s.services {
			s.health.SetServingStatus(reg.desc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		}
	}

	s.srv, s.listener = srv, lis
	s.logger.Info("grpc server listening", "address", lis.Addr().String(), "services", len(s.services))
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("grpc server stopped", "error", err)
		}
	}()
	return nil
}

// Stop marks every service NOT_SERVING, then stops gracefully. Calls still
// running when ctx ends are cut off and an error is returned.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, hs := s.srv, s.health
	s.srv, s.health = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if hs != nil {
		hs.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		<-done
		return fmt.Errorf("grpc: graceful stop interrupted: %w", ctx.Err())
	}
}

// RegisterService installs a service now, or at Serve when not running.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		s.srv.RegisterService(desc, impl)
		if s.health != nil {
			s.health.SetServingStatus(desc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		}
	}
	s.services = append(s.services, registration{desc: desc, impl: impl})
}

// Address is the bound address once serving, the configured one before.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

func (s *Server) serverOptions() ([]grpc.ServerOption, error) {
	cfg := s.config
	var opts []grpc.ServerOption

	if cfg.TLS != nil {
		creds, err := serverCredentials(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams))
	}
	if k := cfg.Keepalive; k != nil {
		opts = append(opts,
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle:     k.MaxIdle,
				MaxConnectionAge:      k.MaxAge,
				MaxConnectionAgeGrace: k.MaxAgeGrace,
				Time:                  k.Time,
				Timeout:               k.Timeout,
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             k.MinTime,
				PermitWithoutStream: k.PermitWithoutStream,
			}),
		)
	}
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(cfg.MaxSendMsgSize))
	}

	chain := interceptors.Options{
		Logger:  s.logger,
		Tracing: cfg.Tracing,
		Metrics: s.metrics,
	}
	if rl := cfg.RateLimit; rl != nil {
		chain.Limiter = interceptors.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
	}
	return append(opts, interceptors.Chain(chain)...), nil
}

// serverCredentials loads the key pair, and the client CA pool when
// client certificates are required.
func serverCredentials(cfg *TLSConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("grpc: load key pair: %w", err)
	}
	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.ClientAuth {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("grpc: read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("grpc: no certificates in %s", cfg.CAFile)
		}
		tc.ClientAuth = tls.RequireAndVerifyClientCert
		tc.ClientCAs = pool
	}
	return credentials.NewTLS(tc), nil
}
