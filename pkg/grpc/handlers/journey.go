package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/storage"
	"github.com/offerforge/offerforge/pkg/totals"
)

// JourneyServiceName is the fully qualified gRPC service name.
const JourneyServiceName = "offerforge.v1.Journey"

// JourneyEngine is the part of the engine the Journey service drives.
type JourneyEngine interface {
	Totals(ctx context.Context, id string) (totals.Totals, error)
	Advance(ctx context.Context, id string) (navigator.Transition, error)
	Retreat(ctx context.Context, id string) (navigator.Transition, error)
}

// JourneyServer is the server API of the Journey service. Requests and
// responses are google.protobuf.Struct messages; requests carry a
// "session_id" string field.
type JourneyServer interface {
	GetTotals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Advance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Retreat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// JourneyServiceServer implements JourneyServer on top of the engine.
type JourneyServiceServer struct {
	engine JourneyEngine
}

// NewJourneyServiceServer creates a new journey service server
func NewJourneyServiceServer(e JourneyEngine) *JourneyServiceServer {
	return &JourneyServiceServer{engine: e}
}

// GetTotals returns the priced view of a session.
func (s *JourneyServiceServer) GetTotals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := sessionID(req)
	if err != nil {
		return nil, err
	}
	t, err := s.engine.Totals(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(t)
}

// Advance moves a session to its next step.
func (s *JourneyServiceServer) Advance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := sessionID(req)
	if err != nil {
		return nil, err
	}
	tr, err := s.engine.Advance(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(tr)
}

// Retreat moves a session back to its previous input step.
func (s *JourneyServiceServer) Retreat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := sessionID(req)
	if err != nil {
		return nil, err
	}
	tr, err := s.engine.Retreat(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return toStruct(tr)
}

func sessionID(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	v, ok := req.GetFields()["session_id"]
	if !ok {
		return "", status.Error(codes.InvalidArgument, "session_id is required")
	}
	id := strings.TrimSpace(v.GetStringValue())
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "session_id must be a non-empty string")
	}
	return id, nil
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// statusFromError maps engine errors to gRPC status codes.
func statusFromError(err error) error {
	var (
		ve        *navigator.ValidationError
		closed    *navigator.ClosedError
		missing   *engine.SessionNotFoundError
		notFound  *storage.NotFoundError
		duplicate *storage.DuplicateKeyError
		stopped   *engine.EngineNotRunningError
		limit     *engine.SessionLimitError
		invariant *journey.InvariantError
	)
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &missing), errors.As(err, &notFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &closed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &duplicate):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &stopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &limit):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.As(err, &invariant):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

type journeyMethod func(JourneyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func journeyHandler(name string, call journeyMethod) grpc.MethodDesc {
	fullMethod := "/" + JourneyServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(JourneyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(JourneyServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// JourneyServiceDesc describes the Journey service for grpc.Server.RegisterService.
var JourneyServiceDesc = grpc.ServiceDesc{
	ServiceName: JourneyServiceName,
	HandlerType: (*JourneyServer)(nil),
	Methods: []grpc.MethodDesc{
		journeyHandler("GetTotals", JourneyServer.GetTotals),
		journeyHandler("Advance", JourneyServer.Advance),
		journeyHandler("Retreat", JourneyServer.Retreat),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "offerforge/v1/journey.proto",
}
