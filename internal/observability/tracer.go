package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Version is reported as service.version on exported spans.
var Version = "dev"

// StartClientSpan starts a span for an outbound call to a remote service.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

var (
	AttrFunctionName   = attribute.Key("faas.invoked_name")
	AttrInvocationMode = attribute.Key("lambdakit.invocation_mode")
	AttrStatusCode     = attribute.Key("lambdakit.status_code")
	AttrRoleARN        = attribute.Key("aws.iam.role_arn")
	AttrSessionName    = attribute.Key("aws.sts.session_name")
)
