// Package trace - HTTP/WebSocket middleware for trace extraction.
package trace

import (
	"context"
	"net/http"
	"strings"
)

// TraceparentHeader is the W3C Trace Context header.
const TraceparentHeader = "traceparent"

// Middleware extracts or creates trace context for HTTP requests, including WebSocket upgrades.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := extractFromHeaders(r)
		ctx := WithContext(r.Context(), tc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractFromHeaders prefers traceparent, then the x-trace-id pair.
func extractFromHeaders(r *http.Request) Context {
	if tc, ok := parseTraceparent(r.Header.Get(TraceparentHeader)); ok {
		return tc
	}
	tc := Context{
		TraceID:      r.Header.Get(TraceIDKey),
		ParentSpanID: r.Header.Get(SpanIDKey),
		SpanID:       newSpanID(),
	}
	if tc.TraceID == "" {
		tc.TraceID = newTraceID()
	}
	return tc
}

// parseTraceparent parses "00-<trace-id>-<parent-id>-<flags>".
func parseTraceparent(v string) (Context, bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 4 || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return Context{}, false
	}
	return Context{
		TraceID:      parts[1],
		ParentSpanID: parts[2],
		SpanID:       newSpanID(),
	}, true
}

// OutgoingHeaders returns the propagation headers for a request made on behalf of ctx.
func OutgoingHeaders(ctx context.Context) map[string]string {
	tc, ok := FromContext(ctx)
	if !ok || len(tc.TraceID) != 32 || len(tc.SpanID) != 16 {
		return nil
	}
	return map[string]string{
		TraceparentHeader: "00-" + tc.TraceID + "-" + tc.SpanID + "-01",
	}
}
