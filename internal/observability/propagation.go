package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InjectClientContext returns a copy of cc whose "custom" section carries
// the W3C trace headers of ctx, so the invoked function can continue the
// trace. cc itself is never modified. Without an active trace cc is
// returned unchanged.
func InjectClientContext(ctx context.Context, cc map[string]any) map[string]any {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		return cc
	}

	out := make(map[string]any, len(cc)+1)
	for k, v := range cc {
		out[k] = v
	}
	custom := map[string]any{}
	if existing, ok := cc["custom"].(map[string]any); ok {
		for k, v := range existing {
			custom[k] = v
		}
	}
	for _, k := range carrier.Keys() {
		custom[k] = carrier.Get(k)
	}
	out["custom"] = custom
	return out
}

// GetTraceID returns the trace ID from context as a string
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the span ID from context as a string
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasSpanID() {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
