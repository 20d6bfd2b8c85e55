package interceptors

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const tracerName = "offerforge.grpc"

// sessionField is the request field naming the composition session.
const sessionField = "session_id"

// TracingUnaryInterceptor opens a server span per RPC. Journey requests
// are tagged with their session id so search and pricing spans of one
// session line up.
func TracingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, span := startServerSpan(ctx, info.FullMethod)
		defer span.End()

		if id := requestSessionID(req); id != "" {
			span.SetAttributes(attribute.String("journey.session_id", id))
		}

		resp, err := handler(ctx, req)
		endServerSpan(span, err)
		return resp, err
	}
}

// TracingStreamInterceptor opens a server span per stream.
func TracingStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, span := startServerSpan(ss.Context(), info.FullMethod)
		defer span.End()

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		endServerSpan(span, err)
		return err
	}
}

// startServerSpan continues the caller's trace and forwards it on the
// outgoing metadata of ctx.
func startServerSpan(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	prop := otel.GetTextMapPropagator()
	in, _ := metadata.FromIncomingContext(ctx)
	ctx = prop.Extract(ctx, metadataCarrier(in))

	service, method := splitMethod(fullMethod)
	ctx, span := otel.Tracer(tracerName).Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		),
	)

	out := metadata.New(nil)
	prop.Inject(ctx, metadataCarrier(out))
	return metadata.NewOutgoingContext(ctx, out), span
}

func endServerSpan(span trace.Span, err error) {
	code := status.Code(err)
	span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(code)))
	if err == nil {
		span.SetStatus(otelcodes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, code.String())
}

func requestSessionID(req interface{}) string {
	s, ok := req.(*structpb.Struct)
	if !ok || s == nil {
		return ""
	}
	if v, ok := s.GetFields()[sessionField]; ok {
		return v.GetStringValue()
	}
	return ""
}

// splitMethod turns "/pkg.Service/Method" into its service and method.
func splitMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	switch {
	case service == "":
		return "unknown", "unknown"
	case !ok:
		return service, "unknown"
	}
	return service, method
}

type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key string, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = metadataCarrier{}
