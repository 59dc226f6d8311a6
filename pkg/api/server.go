package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/goclaw/dayloop/config"
	"github.com/goclaw/dayloop/pkg/logger"
)

// HTTPServer serves the REST API, probes and the event stream.
type HTTPServer struct {
	srv      *http.Server
	handlers *Handlers
	log      logger.Logger
}

// NewHTTPServer routes h behind the configured middleware. Nothing listens
// until Start or Serve.
func NewHTTPServer(cfg *config.Config, log logger.Logger, h *Handlers) *HTTPServer {
	if h == nil {
		h = &Handlers{}
	}
	hc := cfg.Server.HTTP
	return &HTTPServer{
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           NewRouter(cfg, log, h),
			ReadHeaderTimeout: hc.ReadTimeout,
			ReadTimeout:       hc.ReadTimeout,
			WriteTimeout:      hc.WriteTimeout,
			IdleTimeout:       hc.IdleTimeout,
			MaxHeaderBytes:    hc.MaxHeaderBytes,
		},
		handlers: h,
		log:      log.With("component", "http"),
	}
}

// Addr is the configured listen address.
func (s *HTTPServer) Addr() string { return s.srv.Addr }

func (s *HTTPServer) Handler() http.Handler { return s.srv.Handler }

// Start listens on Addr and serves until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown, which makes it return nil.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.log.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the node not ready, disconnects event stream clients
// (their hijacked connections are invisible to http.Server) and drains
// in-flight requests. Connections still open when ctx ends are closed
// forcibly.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.handlers.Health != nil {
		s.handlers.Health.SetDraining(true)
	}
	if s.handlers.Events != nil {
		s.handlers.Events.Close()
	}

	err := s.srv.Shutdown(ctx)
	if err != nil {
		err = errors.Join(fmt.Errorf("drain http: %w", err), s.srv.Close())
		s.log.Warn("HTTP drain incomplete, connections closed", "error", err)
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}
