package grpc

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config configures the gRPC server.
type Config struct {
	// Address is host:port; port 0 picks a free port.
	Address string `validate:"required"`

	// TLS is nil for a plaintext listener.
	TLS *TLSConfig `validate:"omitempty"`

	// MaxConcurrentStreams caps streams per connection; 0 keeps the gRPC
	// default.
	MaxConcurrentStreams uint32

	Keepalive *KeepaliveConfig `validate:"omitempty"`

	MaxRecvMsgSize int `validate:"gte=0"`
	MaxSendMsgSize int `validate:"gte=0"`

	Reflection  bool
	HealthCheck bool
	Tracing     bool

	// RateLimit is nil for no limiting.
	RateLimit *RateLimitConfig `validate:"omitempty"`
}

// RateLimitConfig is a token bucket per calling host.
type RateLimitConfig struct {
	RequestsPerSecond float64 `validate:"gt=0"`
	Burst             int     `validate:"gt=0"`
}

// TLSConfig enables TLS, and mutual TLS when ClientAuth is set.
type TLSConfig struct {
	CertFile   string `validate:"required"`
	KeyFile    string `validate:"required"`
	CAFile     string `validate:"required_if=ClientAuth true"`
	ClientAuth bool
}

// KeepaliveConfig maps onto keepalive.ServerParameters and
// keepalive.EnforcementPolicy.
type KeepaliveConfig struct {
	MaxIdle             time.Duration `validate:"gte=0"`
	MaxAge              time.Duration `validate:"gte=0"`
	MaxAgeGrace         time.Duration `validate:"gte=0"`
	Time                time.Duration `validate:"gte=0"`
	Timeout             time.Duration `validate:"gte=0"`
	MinTime             time.Duration `validate:"gte=0"`
	PermitWithoutStream bool
}

// DefaultConfig listens on :9090 with health checks and tracing on.
func DefaultConfig() *Config {
	return &Config{
		Address:              ":9090",
		MaxConcurrentStreams: 1000,
		MaxRecvMsgSize:       4 << 20,
		MaxSendMsgSize:       4 << 20,
		HealthCheck:          true,
		Tracing:              true,
		Keepalive: &KeepaliveConfig{
			MaxIdle:     5 * time.Minute,
			MaxAge:      time.Hour,
			MaxAgeGrace: time.Minute,
			Time:        time.Minute,
			Timeout:     20 * time.Second,
			MinTime:     30 * time.Second,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that a keepalive ping times out before
// the next one is due.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if k := c.Keepalive; k != nil && k.Time > 0 && k.Timeout >= k.Time {
		return fmt.Errorf("keepalive timeout %s must be shorter than the ping interval %s", k.Timeout, k.Time)
	}
	return nil
}
