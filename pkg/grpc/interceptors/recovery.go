package interceptors

import (
	"context"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/offerforge/offerforge/pkg/logger"
)

var errInternal = status.Error(codes.Internal, "internal server error")

// RecoveryUnaryInterceptor turns handler panics into Internal errors. The
// panic value stays in the log and never reaches the client.
func RecoveryUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	log = orGlobal(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer recoverRPC(ctx, log, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

// RecoveryStreamInterceptor is the streaming form of RecoveryUnaryInterceptor.
func RecoveryStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	log = orGlobal(log)
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverRPC(ss.Context(), log, info.FullMethod, &err)
		return handler(srv, ss)
	}
}

// recoverRPC must be deferred directly.
func recoverRPC(ctx context.Context, log logger.Logger, method string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	log.ErrorContext(ctx, "grpc handler panic",
		"method", method,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	*err = errInternal
}

func orGlobal(log logger.Logger) logger.Logger {
	if log == nil {
		return logger.Global()
	}
	return log
}
