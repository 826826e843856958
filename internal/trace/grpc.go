// Package trace - gRPC interceptors for trace propagation.
package trace

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor restores trace context from incoming metadata and logs each call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = extractMetadata(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		Logger(ctx).Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor restores trace context for streaming calls (health Watch).
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &tracedStream{ServerStream: ss, ctx: extractMetadata(ss.Context())})
	}
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }

// extractMetadata opens a server span under the caller's trace, if it sent one.
func extractMetadata(ctx context.Context) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	tc := Context{
		TraceID:      first(md, TraceIDKey),
		SpanID:       newSpanID(),
		ParentSpanID: first(md, SpanIDKey),
		CallID:       first(md, CallIDKey),
	}
	if tc.TraceID == "" {
		tc.TraceID = newTraceID()
		tc.ParentSpanID = ""
	}
	return WithContext(ctx, tc)
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// OutgoingContext attaches the trace context in ctx to outgoing gRPC metadata,
// starting a trace when ctx has none.
func OutgoingContext(ctx context.Context) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		tc = Context{TraceID: newTraceID(), SpanID: newSpanID()}
		ctx = WithContext(ctx, tc)
	}
	pairs := []string{TraceIDKey, tc.TraceID, SpanIDKey, tc.SpanID}
	if tc.CallID != "" {
		pairs = append(pairs, CallIDKey, tc.CallID)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
