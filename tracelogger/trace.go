package tracelogger

import (
	"context"

	"github.com/google/uuid"
)

// TraceIDHeader is the header used for trace ID propagation between
// services.
const TraceIDHeader = "X-Trace-Id"

type traceIDKey struct{}

// TraceIDFromContext returns the trace ID stored in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// ContextWithTraceID returns a child context carrying the given trace ID.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// EnsureTraceID resolves the effective trace ID for a capture: an explicit
// candidate wins, then the one already in ctx, otherwise a fresh UUID. The
// returned context always carries the resolved ID.
func EnsureTraceID(ctx context.Context, candidate string) (context.Context, string) {
	traceID := candidate
	if traceID == "" {
		traceID = TraceIDFromContext(ctx)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return ContextWithTraceID(ctx, traceID), traceID
}
