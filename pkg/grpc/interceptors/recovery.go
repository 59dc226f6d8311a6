package interceptors

import (
	"context"
	"runtime/debug"

	"github.com/goclaw/dayloop/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errPanic = status.Error(codes.Internal, "internal server error")

// RecoveryUnaryInterceptor turns a handler panic into codes.Internal.
func RecoveryUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	log = orNop(log)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer recoverCall(ctx, log, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

// RecoveryStreamInterceptor turns a stream handler panic into
// codes.Internal.
func RecoveryStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	log = orNop(log)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverCall(ss.Context(), log, info.FullMethod, &err)
		return handler(srv, ss)
	}
}

func recoverCall(ctx context.Context, log logger.Logger, method string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	log.ErrorContext(ctx, "grpc handler panic",
		"method", method,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	*err = errPanic
}
