package interceptors

import (
	"context"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnaryInterceptor logs one line per call, at error level for
// server faults and warn for other failures.
func LoggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	log = orNop(log)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, log, info.FullMethod, actorOf(req), start, err)
		return resp, err
	}
}

// LoggingStreamInterceptor logs when a stream opens and when it ends.
func LoggingStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	log = orNop(log)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx := ss.Context()
		log.DebugContext(ctx, "grpc stream opened", "method", info.FullMethod)
		err := handler(srv, ss)
		logCall(ctx, log, info.FullMethod, "", start, err)
		return err
	}
}

func logCall(ctx context.Context, log logger.Logger, method, actor string, start time.Time, err error) {
	code := status.Code(err)
	args := []any{
		"method", method,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if actor != "" {
		args = append(args, "actor", actor)
	}
	switch {
	case code == codes.OK || code == codes.Canceled:
		log.InfoContext(ctx, "grpc call", args...)
	case serverFault(code):
		log.ErrorContext(ctx, "grpc call failed", append(args, "error", err)...)
	default:
		log.WarnContext(ctx, "grpc call rejected", append(args, "error", err)...)
	}
}
