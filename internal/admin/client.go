package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
	"github.com/GriffinCanCode/voicebridge/internal/trace"
)

// Client talks to a bridge's admin port.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewClient creates a client for addr. Extra options are appended to the defaults.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "admin client")
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the admin service is SERVING.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	resp, err := c.health.Check(trace.OutgoingContext(ctx), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, apperrors.FromGRPCError(err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// ListSessions fetches every live session.
func (c *Client) ListSessions(ctx context.Context) (*structpb.Struct, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	out := new(structpb.Struct)
	if err := c.conn.Invoke(trace.OutgoingContext(ctx), listSessionsMethod, &emptypb.Empty{}, out); err != nil {
		return nil, apperrors.FromGRPCError(err)
	}
	return out, nil
}

// GetSession fetches one session by call id.
func (c *Client) GetSession(ctx context.Context, callID string) (*structpb.Struct, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	out := new(structpb.Struct)
	if err := c.conn.Invoke(trace.OutgoingContext(ctx), getSessionMethod, wrapperspb.String(callID), out); err != nil {
		return nil, apperrors.FromGRPCError(err)
	}
	return out, nil
}

func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultCallTimeout)
}
