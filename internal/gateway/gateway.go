// Package gateway is the typed invocation pipeline: validate, encode,
// submit once, decode.
//
// # Construction
//
// A Gateway owns one Invoker for its whole life. NewFromRegion builds it
// from the default credentials chain, NewFromCredentials from temporary
// credentials issued by the broker. Both produce the same Gateway type with
// the same Invoke behaviour; credentials never appear per call.
//
// # Errors
//
// Local failures are domain.KindValidation, KindSerialization or
// KindEncoding and happen before (or after) the single transport call.
// Transport errors are returned exactly as the Invoker produced them. If
// the context ends first the result is always KindCancelled.
//
// A function that raised is still a reply: Invoke returns the filled
// response (status code, FunctionError, the raw error document) together
// with a KindFunction error. Callers that only check err still see the
// failure; callers that want the reply have it.
//
// # Concurrency
//
// Gateway has no mutable state. Any number of goroutines may call Invoke
// on one instance.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/lambdakit/internal/codec"
	"github.com/oriys/lambdakit/internal/domain"
	"github.com/oriys/lambdakit/internal/lambdaclient"
	"github.com/oriys/lambdakit/internal/logging"
	"github.com/oriys/lambdakit/internal/metrics"
	"github.com/oriys/lambdakit/internal/observability"
)

// Invoker submits one envelope and reports the raw reply.
type Invoker interface {
	SubmitInvocation(ctx context.Context, env domain.Envelope) (*domain.RawResponse, error)
}

// Gateway invokes remote functions with typed payloads.
type Gateway struct {
	invoker Invoker
	log     *logging.Logger
	schemas map[string]*PayloadSchema
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithRequestLogger writes one request log entry per invocation. Without it
// only the operational logger and metrics see invocations.
func WithRequestLogger(l *logging.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithPayloadSchema validates payloads sent to functionName against schema
// before submission. A payload that fails is a KindValidation error and
// never reaches the transport.
func WithPayloadSchema(functionName string, schema *PayloadSchema) Option {
	return func(g *Gateway) {
		if g.schemas == nil {
			g.schemas = make(map[string]*PayloadSchema)
		}
		g.schemas[functionName] = schema
	}
}

// New wraps an existing Invoker.
func New(invoker Invoker, opts ...Option) *Gateway {
	g := &Gateway{invoker: invoker}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewFromRegion builds a Gateway authorized by the default credentials chain.
func NewFromRegion(ctx context.Context, cfg lambdaclient.Config, opts ...Option) (*Gateway, error) {
	client, err := lambdaclient.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, opts...), nil
}

// NewFromCredentials builds a Gateway authorized by temporary credentials.
func NewFromCredentials(ctx context.Context, creds domain.TemporaryCredentials, cfg lambdaclient.Config, opts ...Option) (*Gateway, error) {
	client, err := lambdaclient.NewWithCredentials(ctx, creds, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, opts...), nil
}

// Invoke runs one typed invocation. On success the response status code is
// the one the service reported, unmodified.
func Invoke[P, R any](ctx context.Context, g *Gateway, req domain.InvocationRequest[P]) (*domain.InvocationResponse[R], error) {
	if req.Mode.OrDefault() == domain.ModeRequestResponse {
		req.ClientContext = observability.InjectClientContext(ctx, req.ClientContext)
	}
	env, err := req.Envelope(codec.Encode)
	if err != nil {
		g.record(ctx, req.FunctionName, req.Mode.OrDefault(), time.Now(), 0, nil, err)
		return nil, err
	}

	raw, err := g.submit(ctx, env)
	if raw == nil {
		return nil, err
	}
	resp := &domain.InvocationResponse[R]{
		StatusCode:      raw.StatusCode,
		ExecutedVersion: raw.ExecutedVersion,
		LogTail:         raw.DecodeLogTail(),
		FunctionError:   raw.FunctionError,
		RawPayload:      raw.Payload,
	}
	if err != nil {
		// the body is the runtime's error document, not an R
		return resp, err
	}

	payload, err := codec.Decode[R](raw.Payload)
	if err != nil {
		var e *domain.Error
		if errors.As(err, &e) {
			cp := *e
			cp.Op, cp.Target, cp.StatusCode = "invoke", env.FunctionName, raw.StatusCode
			err = &cp
		}
		return nil, err
	}
	resp.Payload = payload
	return resp, nil
}

// InvokeRaw submits a pre-built envelope and returns the raw reply. It
// applies the same validation, cancellation and function-error handling as
// Invoke, including returning the reply next to a KindFunction error.
func (g *Gateway) InvokeRaw(ctx context.Context, env domain.Envelope) (*domain.RawResponse, error) {
	if err := env.Validate(); err != nil {
		g.record(ctx, env.FunctionName, env.Mode.OrDefault(), time.Now(), 0, nil, err)
		return nil, err
	}
	env.Mode = env.Mode.OrDefault()
	return g.submit(ctx, env)
}

func (g *Gateway) submit(ctx context.Context, env domain.Envelope) (*domain.RawResponse, error) {
	start := time.Now()
	if err := g.checkSchema(env); err != nil {
		g.record(ctx, env.FunctionName, env.Mode, start, len(env.Payload), nil, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		err = cancelled(env.FunctionName, err)
		g.record(ctx, env.FunctionName, env.Mode, start, len(env.Payload), nil, err)
		return nil, err
	}

	ctx, span := observability.StartClientSpan(ctx, "gateway.Invoke",
		observability.AttrFunctionName.String(env.FunctionName),
		observability.AttrInvocationMode.String(string(env.Mode)),
	)
	defer span.End()

	raw, err := g.invoker.SubmitInvocation(ctx, env)
	if err == nil && raw == nil {
		err = &domain.Error{Kind: domain.KindRemoteInvocation, Op: "invoke", Target: env.FunctionName, Message: "transport returned no response"}
	}
	if err == nil && ctx.Err() != nil {
		// Reply raced with cancellation: the caller asked to stop, so
		// nothing is returned.
		raw, err = nil, cancelled(env.FunctionName, ctx.Err())
	}
	if err == nil && raw.FunctionError != "" {
		err = &domain.Error{
			Kind:       domain.KindFunction,
			Op:         "invoke",
			Target:     env.FunctionName,
			Code:       raw.FunctionError,
			StatusCode: raw.StatusCode,
			Failure:    domain.ParseFunctionFailure(raw.Payload),
		}
	}
	if err != nil && ctx.Err() != nil && !domain.IsKind(err, domain.KindCancelled) {
		err = cancelled(env.FunctionName, err)
	}

	if err != nil {
		observability.SetSpanError(span, err)
	} else {
		span.SetAttributes(observability.AttrStatusCode.Int(raw.StatusCode))
		observability.SetSpanOK(span)
	}
	g.record(ctx, env.FunctionName, env.Mode, start, len(env.Payload), raw, err)

	if err != nil && !domain.IsKind(err, domain.KindFunction) {
		return nil, err
	}
	return raw, err
}

func cancelled(functionName string, cause error) error {
	return &domain.Error{
		Kind:    domain.KindCancelled,
		Op:      "invoke",
		Target:  functionName,
		Message: "invocation cancelled before the service replied",
		Err:     cause,
	}
}

func (g *Gateway) record(ctx context.Context, fn string, mode domain.InvocationMode, start time.Time, inSize int, raw *domain.RawResponse, err error) {
	duration := time.Since(start)
	requestID := logging.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.New().String()[:8]
	}
	entry := &logging.RequestLog{
		RequestID:  requestID,
		TraceID:    observability.GetTraceID(ctx),
		Function:   fn,
		Mode:       string(mode),
		DurationMs: duration.Milliseconds(),
		Success:    err == nil,
		InputSize:  inSize,
	}
	status := "success"
	if raw != nil {
		entry.StatusCode = raw.StatusCode
		entry.OutputSize = len(raw.Payload)
		entry.Version = raw.ExecutedVersion
	}
	if err != nil {
		entry.Error = err.Error()
		entry.ErrorKind = string(domain.KindOf(err))
		entry.ErrorCode = domain.CodeOf(err)
		status = entry.ErrorKind
		if status == "" {
			status = "error"
		}
	}
	if g.log != nil {
		g.log.Log(entry)
	}
	if err != nil {
		logging.OpWithTrace(entry.TraceID, observability.GetSpanID(ctx)).Debug("invoke failed", "request_id", requestID, "function", fn, "mode", mode, "kind", entry.ErrorKind, "code", entry.ErrorCode, "error", err)
	}
	metrics.RecordInvocation(fn, string(mode), status, duration)
}
