package config

import (
	"net"
	"strconv"

	grpcpkg "github.com/goclaw/dayloop/pkg/grpc"
)

// ToGRPCConfig builds the gRPC server settings, listening on host. Server
// tracing follows the top-level tracing switch.
func (g *GRPCConfig) ToGRPCConfig(host string, tracing bool) *grpcpkg.Config {
	ka := grpcpkg.KeepaliveConfig(g.Keepalive)
	cfg := &grpcpkg.Config{
		Address:              net.JoinHostPort(host, strconv.Itoa(g.Port)),
		MaxConcurrentStreams: uint32(g.MaxStreams),
		MaxRecvMsgSize:       g.MaxRecvMsgSize,
		MaxSendMsgSize:       g.MaxSendMsgSize,
		Reflection:           g.Reflection,
		HealthCheck:          g.HealthCheck,
		Tracing:              tracing,
		Keepalive:            &ka,
	}
	if g.TLS.Enabled {
		cfg.TLS = &grpcpkg.TLSConfig{
			CertFile:   g.TLS.CertFile,
			KeyFile:    g.TLS.KeyFile,
			CAFile:     g.TLS.CAFile,
			ClientAuth: g.TLS.ClientAuth,
		}
	}
	if g.RateLimit.Enabled {
		cfg.RateLimit = &grpcpkg.RateLimitConfig{
			RequestsPerSecond: g.RateLimit.RequestsPerSecond,
			Burst:             g.RateLimit.Burst,
		}
	}
	return cfg
}
