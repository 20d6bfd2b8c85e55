package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/offerforge/offerforge/pkg/logger"
)

// LoggingUnaryInterceptor logs one line per unary RPC.
func LoggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	log = orGlobal(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, log, "grpc request", info.FullMethod, start, err)
		return resp, err
	}
}

// LoggingStreamInterceptor logs one line per stream when it ends.
func LoggingStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	log = orGlobal(log)
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), log, "grpc stream", info.FullMethod, start, err)
		return err
	}
}

func logCall(ctx context.Context, log logger.Logger, msg, method string, start time.Time, err error) {
	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = "unknown"
	}
	code := status.Code(err)
	args := []any{
		"request_id", requestID,
		"method", method,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}

	switch code {
	case codes.OK, codes.NotFound, codes.InvalidArgument, codes.FailedPrecondition, codes.Canceled:
		log.InfoContext(ctx, msg, args...)
	default:
		log.WarnContext(ctx, msg, append(args, "error", err)...)
	}
}
