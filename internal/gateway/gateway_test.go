package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/lambdakit/internal/domain"
	"github.com/oriys/lambdakit/internal/lambdaclient"
	"github.com/oriys/lambdakit/internal/logging"
)

type invokerFunc func(context.Context, domain.Envelope) (*domain.RawResponse, error)

func (f invokerFunc) SubmitInvocation(ctx context.Context, env domain.Envelope) (*domain.RawResponse, error) {
	return f(ctx, env)
}

// echoInvoker replies with the request payload and the documented status
// code for the mode.
func echoInvoker(calls *atomic.Int64) invokerFunc {
	return func(_ context.Context, env domain.Envelope) (*domain.RawResponse, error) {
		if calls != nil {
			calls.Add(1)
		}
		return &domain.RawResponse{StatusCode: env.Mode.ExpectedStatus(), Payload: env.Payload}, nil
	}
}

type order struct {
	ID    string   `json:"id"`
	Items []string `json:"items"`
	Total float64  `json:"total"`
}

func TestInvokeRoundTrip(t *testing.T) {
	g := New(echoInvoker(nil))
	in := order{ID: "ord-1", Items: []string{"a", "b"}, Total: 12.5}

	resp, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("orders", in))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !reflect.DeepEqual(resp.Payload, in) {
		t.Fatalf("payload = %+v, want %+v", resp.Payload, in)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.FunctionError != "" || !strings.Contains(string(resp.RawPayload), `"ord-1"`) {
		t.Fatalf("unexpected raw fields: %+v", resp)
	}
}

func TestInvokeDefaultsToRequestResponse(t *testing.T) {
	var got domain.Envelope
	g := New(invokerFunc(func(_ context.Context, env domain.Envelope) (*domain.RawResponse, error) {
		got = env
		return &domain.RawResponse{StatusCode: 200, Payload: []byte(`null`)}, nil
	}))

	req := domain.InvocationRequest[int]{FunctionName: "f", Payload: 1}
	if _, err := Invoke[int, *int](context.Background(), g, req); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.Mode != domain.ModeRequestResponse {
		t.Fatalf("Mode = %q, want RequestResponse", got.Mode)
	}
	if string(got.Payload) != "1" {
		t.Fatalf("Payload = %s", got.Payload)
	}
}

func TestInvokeValidatesBeforeCall(t *testing.T) {
	var calls atomic.Int64
	g := New(echoInvoker(&calls))

	tests := []domain.InvocationRequest[string]{
		{FunctionName: "", Payload: "x"},
		{FunctionName: "f", Mode: "Sometime", Payload: "x"},
	}
	for _, req := range tests {
		_, err := Invoke[string, string](context.Background(), g, req)
		if !domain.IsKind(err, domain.KindValidation) {
			t.Fatalf("err = %v, want validation error", err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("transport called %d times", calls.Load())
	}
}

func TestInvokeSerializationErrorBeforeCall(t *testing.T) {
	var calls atomic.Int64
	g := New(echoInvoker(&calls))

	_, err := Invoke[chan int, any](context.Background(), g, domain.NewInvocationRequest("f", make(chan int)))
	if !domain.IsKind(err, domain.KindSerialization) {
		t.Fatalf("err = %v, want serialization error", err)
	}
	var e *domain.Error
	if !errors.As(err, &e) || e.Target != "f" {
		t.Fatalf("err = %+v, want target f", err)
	}
	if calls.Load() != 0 {
		t.Fatal("transport must not be called")
	}
}

func TestInvokeStatusPassThrough(t *testing.T) {
	g := New(echoInvoker(nil))
	tests := []struct {
		mode domain.InvocationMode
		want int
	}{
		{domain.ModeRequestResponse, 200},
		{domain.ModeEvent, 202},
		{domain.ModeDryRun, 204},
	}
	for _, tt := range tests {
		resp, err := Invoke[order, order](context.Background(), g,
			domain.NewInvocationRequest("orders", order{ID: "x"}, domain.WithMode(tt.mode)))
		if err != nil {
			t.Fatalf("%s: Invoke: %v", tt.mode, err)
		}
		if resp.StatusCode != tt.want {
			t.Fatalf("%s: StatusCode = %d, want %d", tt.mode, resp.StatusCode, tt.want)
		}
	}
}

func TestInvokeStatusIsNotChecked(t *testing.T) {
	g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
		return &domain.RawResponse{StatusCode: 299}, nil
	}))
	resp, err := Invoke[int, *order](context.Background(), g, domain.NewInvocationRequest("f", 1, domain.WithMode(domain.ModeEvent)))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.StatusCode != 299 || resp.Payload != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestInvokeEventWithEmptyBody(t *testing.T) {
	g := New(invokerFunc(func(_ context.Context, env domain.Envelope) (*domain.RawResponse, error) {
		return &domain.RawResponse{StatusCode: 202}, nil
	}))
	resp, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("f", order{}, domain.WithMode(domain.ModeEvent)))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.StatusCode != 202 || !reflect.DeepEqual(resp.Payload, order{}) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestInvokeTransportErrorIsUnchanged(t *testing.T) {
	remote := &domain.Error{
		Kind:    domain.KindRemoteInvocation,
		Op:      "invoke",
		Target:  "missing",
		Code:    "ResourceNotFoundException",
		Message: "Function not found: arn:aws:lambda:us-east-1:123456789012:function:missing",
	}
	g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
		return nil, remote
	}))

	resp, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("missing", order{}))
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
	if err != remote {
		t.Fatalf("err = %v, want the transport error unchanged", err)
	}
	if domain.KindOf(err) != domain.KindRemoteInvocation || domain.CodeOf(err) != "ResourceNotFoundException" {
		t.Fatalf("kind/code changed: %v", err)
	}
}

func TestInvokeConcurrentCallsDoNotCrossTalk(t *testing.T) {
	g := New(invokerFunc(func(_ context.Context, env domain.Envelope) (*domain.RawResponse, error) {
		var in order
		if err := json.Unmarshal(env.Payload, &in); err != nil {
			return nil, err
		}
		// Vary latency so replies complete out of order.
		time.Sleep(time.Duration(len(in.ID)%3) * time.Millisecond)
		out, _ := json.Marshal(map[string]string{"echo": in.ID})
		return &domain.RawResponse{StatusCode: 200, Payload: out}, nil
	}))

	const n = 64
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("req-%d-%s", i, strings.Repeat("x", i%5))
		eg.Go(func() error {
			resp, err := Invoke[order, map[string]string](context.Background(), g, domain.NewInvocationRequest("echo", order{ID: id}))
			if err != nil {
				return err
			}
			if resp.Payload["echo"] != id {
				return fmt.Errorf("request %s got reply for %s", id, resp.Payload["echo"])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestInvokeCancelledBeforeReply(t *testing.T) {
	started := make(chan struct{})
	g := New(invokerFunc(func(ctx context.Context, _ domain.Envelope) (*domain.RawResponse, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	resp, err := Invoke[order, order](ctx, g, domain.NewInvocationRequest("slow", order{ID: "1"}))
	if resp != nil {
		t.Fatalf("expected no response, got %+v", resp)
	}
	if !domain.IsKind(err, domain.KindCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatal("context.Canceled should be in the chain")
	}
}

func TestInvokeCancelledReplyIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
		cancel()
		return &domain.RawResponse{StatusCode: 200, Payload: []byte(`{"id":"late"}`)}, nil
	}))

	resp, err := Invoke[order, order](ctx, g, domain.NewInvocationRequest("f", order{}))
	if resp != nil || !domain.IsKind(err, domain.KindCancelled) {
		t.Fatalf("resp=%+v err=%v, want cancelled with no response", resp, err)
	}
}

func TestInvokeAlreadyCancelledSkipsTransport(t *testing.T) {
	var calls atomic.Int64
	g := New(echoInvoker(&calls))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Invoke[order, order](ctx, g, domain.NewInvocationRequest("f", order{}))
	if !domain.IsKind(err, domain.KindCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	if calls.Load() != 0 {
		t.Fatal("transport must not be called with a cancelled context")
	}
}

func TestInvokeFunctionErrorKeepsReply(t *testing.T) {
	doc := `{"errorMessage":"division by zero","errorType":"ZeroDivisionError"}`
	g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
		return &domain.RawResponse{
			StatusCode:      200,
			FunctionError:   "Unhandled",
			ExecutedVersion: "3",
			LogResult:       "U1RBUlQK",
			Payload:         []byte(doc),
		}, nil
	}))

	// []int cannot hold the error document; the reply must still come back.
	resp, err := Invoke[order, []int](context.Background(), g, domain.NewInvocationRequest("calc", order{}))
	if resp == nil {
		t.Fatal("expected the reply alongside the function error")
	}
	if resp.StatusCode != 200 || resp.FunctionError != "Unhandled" || resp.ExecutedVersion != "3" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if string(resp.RawPayload) != doc {
		t.Fatalf("RawPayload = %s, want the error document", resp.RawPayload)
	}
	if resp.Payload != nil || resp.LogTail != "START\n" {
		t.Fatalf("payload=%v logTail=%q", resp.Payload, resp.LogTail)
	}

	var e *domain.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *domain.Error, got %v", err)
	}
	if e.Kind != domain.KindFunction || e.Code != "Unhandled" || e.StatusCode != 200 {
		t.Fatalf("unexpected error: %+v", e)
	}
	if e.Failure == nil || e.Failure.ErrorType != "ZeroDivisionError" {
		t.Fatalf("unexpected failure: %+v", e.Failure)
	}
}

func TestInvokeRawFunctionErrorKeepsReply(t *testing.T) {
	g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
		return &domain.RawResponse{StatusCode: 200, FunctionError: "Handled", Payload: []byte(`{"errorMessage":"bad input"}`)}, nil
	}))

	raw, err := g.InvokeRaw(context.Background(), domain.Envelope{FunctionName: "f", Payload: []byte(`{}`)})
	if !domain.IsKind(err, domain.KindFunction) {
		t.Fatalf("err = %v, want function error", err)
	}
	if raw == nil || raw.StatusCode != 200 || !strings.Contains(string(raw.Payload), "bad input") {
		t.Fatalf("unexpected raw reply: %+v", raw)
	}
}

func TestInvokeDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		kind    domain.ErrorKind
	}{
		{"invalid utf8", []byte{'"', 0xff, '"'}, domain.KindEncoding},
		{"wrong shape", []byte(`[1,2]`), domain.KindSerialization},
	}
	for _, tt := range tests {
		g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
			return &domain.RawResponse{StatusCode: 200, Payload: tt.payload}, nil
		}))
		_, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("f", order{}))
		var e *domain.Error
		if !errors.As(err, &e) || e.Kind != tt.kind {
			t.Fatalf("%s: err = %v, want %s", tt.name, err, tt.kind)
		}
		if e.Target != "f" || e.StatusCode != 200 {
			t.Fatalf("%s: missing context: %+v", tt.name, e)
		}
	}
}

func TestInvokeNilResponse(t *testing.T) {
	g := New(invokerFunc(func(context.Context, domain.Envelope) (*domain.RawResponse, error) {
		return nil, nil
	}))
	_, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("f", order{}))
	if !domain.IsKind(err, domain.KindRemoteInvocation) {
		t.Fatalf("err = %v", err)
	}
}

func TestInvokeRaw(t *testing.T) {
	var got domain.Envelope
	g := New(invokerFunc(func(_ context.Context, env domain.Envelope) (*domain.RawResponse, error) {
		got = env
		return &domain.RawResponse{StatusCode: 204}, nil
	}))

	resp, err := g.InvokeRaw(context.Background(), domain.Envelope{FunctionName: "f", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("InvokeRaw: %v", err)
	}
	if got.Mode != domain.ModeRequestResponse || resp.StatusCode != 204 {
		t.Fatalf("mode=%q status=%d", got.Mode, resp.StatusCode)
	}

	if _, err := g.InvokeRaw(context.Background(), domain.Envelope{}); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("empty envelope err = %v", err)
	}
}

func TestPayloadSchemaRejectsBeforeCall(t *testing.T) {
	schema, err := ParseSchema([]byte(`{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "pattern": "^ord-[0-9]+$"},
			"total": {"type": "number", "minimum": 0}
		}
	}`))
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}

	var calls atomic.Int64
	g := New(echoInvoker(&calls), WithPayloadSchema("orders", schema))

	_, err = Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("orders", order{ID: "bad"}))
	if !domain.IsKind(err, domain.KindValidation) || !strings.Contains(err.Error(), "$.id") {
		t.Fatalf("err = %v, want schema validation error on $.id", err)
	}
	if calls.Load() != 0 {
		t.Fatal("transport must not be called")
	}

	if _, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("orders", order{ID: "ord-7", Total: 3})); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if _, err := Invoke[order, order](context.Background(), g, domain.NewInvocationRequest("other", order{ID: "bad"})); err != nil {
		t.Fatalf("schema applied to the wrong function: %v", err)
	}
}

func TestRequestLoggerRecordsInvocation(t *testing.T) {
	var buf bytes.Buffer
	g := New(echoInvoker(nil), WithRequestLogger(logging.New(&buf)))

	ctx := logging.WithRequestID(context.Background(), "req-0001")
	if _, err := Invoke[order, order](ctx, g,
		domain.NewInvocationRequest("orders", order{ID: "1"}, domain.WithMode(domain.ModeEvent))); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(buf.String(), "req-0001 orders Event 202") {
		t.Fatalf("unexpected request log: %q", buf.String())
	}
}

func TestNewFromCredentialsRejectsEmptyKeys(t *testing.T) {
	_, err := NewFromCredentials(context.Background(), domain.TemporaryCredentials{}, lambdaclient.Config{Region: "us-east-1"})
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("err = %v", err)
	}
}
