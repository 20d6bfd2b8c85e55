package interceptors

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDKey is the metadata key carrying the request id. It matches the
// X-Request-ID header of the HTTP API.
const RequestIDKey = "x-request-id"

// maxRequestIDLen bounds caller-supplied ids; longer ones are replaced.
const maxRequestIDLen = 128

// RequestIDUnaryInterceptor propagates the caller's request id or mints
// one, and echoes it in the response header.
func RequestIDUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, id := requestIDContext(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, id))
		return handler(ctx, req)
	}
}

// RequestIDStreamInterceptor is the streaming variant.
func RequestIDStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, id := requestIDContext(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(RequestIDKey, id))
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func requestIDContext(ctx context.Context) (context.Context, string) {
	id := incomingRequestID(ctx)
	if id == "" {
		id = uuid.New().String()
	}
	ctx = withRequestID(ctx, id)
	return metadata.AppendToOutgoingContext(ctx, RequestIDKey, id), id
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, id := range md.Get(RequestIDKey) {
		if id = strings.TrimSpace(id); id != "" && len(id) <= maxRequestIDLen {
			return id
		}
	}
	return ""
}

// wrappedStream swaps the stream context.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
