package interceptors

import (
	"github.com/goclaw/dayloop/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// Options selects the interceptors Chain installs. Recovery, request ids
// and logging are always on.
type Options struct {
	Logger  logger.Logger
	Tracing bool
	// Metrics may be nil.
	Metrics *Metrics
	// Limiter may be nil.
	Limiter *RateLimiter
}

// Chain returns the server options installing the interceptors in order:
// recovery, request id, tracing, logging, metrics, rate limit. Rejected
// calls are therefore still traced, logged and counted.
func Chain(opts Options) []grpc.ServerOption {
	unary := []grpc.UnaryServerInterceptor{
		RecoveryUnaryInterceptor(opts.Logger),
		RequestIDUnaryInterceptor(),
	}
	stream := []grpc.StreamServerInterceptor{
		RecoveryStreamInterceptor(opts.Logger),
		RequestIDStreamInterceptor(),
	}
	if opts.Tracing {
		unary = append(unary, TracingUnaryInterceptor())
		stream = append(stream, TracingStreamInterceptor())
	}
	unary = append(unary, LoggingUnaryInterceptor(opts.Logger))
	stream = append(stream, LoggingStreamInterceptor(opts.Logger))
	if opts.Metrics != nil {
		unary = append(unary, MetricsUnaryInterceptor(opts.Metrics))
		stream = append(stream, MetricsStreamInterceptor(opts.Metrics))
	}
	if opts.Limiter != nil {
		unary = append(unary, RateLimitUnaryInterceptor(opts.Limiter))
		stream = append(stream, RateLimitStreamInterceptor(opts.Limiter))
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
}

// serverFault reports whether code means the server failed, as opposed to
// the caller sending something wrong.
func serverFault(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func orNop(log logger.Logger) logger.Logger {
	if log == nil {
		return logger.Nop()
	}
	return log
}
