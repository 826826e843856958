// Package trace threads trace and call identifiers through context so the
// log lines and outgoing requests of one call can be joined up.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
)

// Propagation keys, used as gRPC metadata and as HTTP fallback headers.
const (
	TraceIDKey = "x-trace-id"
	SpanIDKey  = "x-span-id"
	CallIDKey  = "x-call-id"
)

type ctxKey struct{}

// Context places the current work within a trace. IDs follow W3C sizes:
// 32 hex characters for the trace, 16 for a span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	CallID       string
}

// FromContext returns the trace context stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// WithCall opens the span of one call under the trace already in ctx, or
// under a fresh trace when there is none.
func WithCall(ctx context.Context, callID string) context.Context {
	parent, ok := FromContext(ctx)
	if !ok || parent.TraceID == "" {
		parent = Context{TraceID: newTraceID()}
	}
	return WithContext(ctx, Context{
		TraceID:      parent.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: parent.SpanID,
		CallID:       callID,
	})
}

func newTraceID() string { return randomHex(16) }

func newSpanID() string { return randomHex(8) }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Logger returns the default logger tagged with the trace and call in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := make([]any, 0, 8)
	args = append(args, "trace_id", tc.TraceID, "span_id", tc.SpanID)
	if tc.ParentSpanID != "" {
		args = append(args, "parent_span_id", tc.ParentSpanID)
	}
	if tc.CallID != "" {
		args = append(args, "call_id", tc.CallID)
	}
	return slog.Default().With(args...)
}
