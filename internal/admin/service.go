package admin

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/orchestrator"
	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

// Sessions is the read side of the call registry.
type Sessions interface {
	List() []orchestrator.Snapshot
	Lookup(callID string) (orchestrator.Snapshot, bool)
}

// AdminServer is the server API for the admin service.
type AdminServer interface {
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// Service implements AdminServer over a registry.
type Service struct {
	sessions Sessions
}

// NewService creates the admin service.
func NewService(sessions Sessions) *Service {
	return &Service{sessions: sessions}
}

// ListSessions returns {"count": n, "sessions": [...]}, oldest call first.
func (s *Service) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snaps := s.sessions.List()
	list := make([]any, 0, len(snaps))
	for _, snap := range snaps {
		m, err := snapshotMap(snap)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	trace.Logger(ctx).Debug("admin list sessions", "count", len(list))

	out, err := structpb.NewStruct(map[string]any{
		"count":    len(list),
		"sessions": list,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode session list")
	}
	return out, nil
}

// GetSession returns the snapshot of one call.
func (s *Service) GetSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := req.GetValue()
	if id == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "call id is required")
	}
	snap, ok := s.sessions.Lookup(id)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no live session for call %s", id).
			WithMetadata("call_id", id)
	}
	m, err := snapshotMap(snap)
	if err != nil {
		return nil, err
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode session")
	}
	return out, nil
}

// snapshotMap renders a snapshot with the same field names as the HTTP API.
func snapshotMap(snap orchestrator.Snapshot) (map[string]any, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "marshal snapshot")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "unmarshal snapshot")
	}
	return m, nil
}

func listSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listSessionsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ListSessions(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getSessionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the admin service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: listSessionsHandler},
		{MethodName: "GetSession", Handler: getSessionHandler},
	},
	Streams:     []grpc.StreamDesc{},
}
