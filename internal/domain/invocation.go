package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// InvocationMode selects how the remote function executes. The literal
// values are the Lambda InvocationType names and must not change.
type InvocationMode string

const (
	// ModeRequestResponse invokes synchronously and waits for the result (default).
	ModeRequestResponse InvocationMode = "RequestResponse"
	// ModeEvent queues the invocation and returns immediately.
	ModeEvent InvocationMode = "Event"
	// ModeDryRun validates parameters and permissions without executing.
	ModeDryRun InvocationMode = "DryRun"
)

// ParseInvocationMode accepts the exact wire literals plus a few CLI-friendly
// aliases. The empty string yields the default mode.
func ParseInvocationMode(s string) (InvocationMode, error) {
	switch s {
	case "", string(ModeRequestResponse), "sync":
		return ModeRequestResponse, nil
	case string(ModeEvent), "async":
		return ModeEvent, nil
	case string(ModeDryRun), "dry-run":
		return ModeDryRun, nil
	}
	return "", &Error{
		Kind:    KindValidation,
		Op:      "parse-mode",
		Target:  s,
		Message: fmt.Sprintf("invalid invocation mode %q (valid: RequestResponse, Event, DryRun)", s),
	}
}

// OrDefault returns ModeRequestResponse when m is unset.
func (m InvocationMode) OrDefault() InvocationMode {
	if m == "" {
		return ModeRequestResponse
	}
	return m
}

func (m InvocationMode) IsValid() bool {
	switch m.OrDefault() {
	case ModeRequestResponse, ModeEvent, ModeDryRun:
		return true
	}
	return false
}

// ExpectedStatus is the status code the service documents for a successful
// call in this mode. It is informational; responses are never checked against it.
func (m InvocationMode) ExpectedStatus() int {
	switch m.OrDefault() {
	case ModeEvent:
		return http.StatusAccepted
	case ModeDryRun:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

// InvocationRequest is a typed request for one remote invocation. It is a
// value object: build it once and do not mutate it while a call is in flight.
type InvocationRequest[P any] struct {
	FunctionName string
	Mode         InvocationMode
	Payload      P

	// Qualifier selects a published version or alias.
	Qualifier string
	// ClientContext is passed to the function (synchronous invocations only).
	ClientContext map[string]any
	// TailLogs asks for the last 4 KB of execution log (synchronous only).
	TailLogs bool
}

// RequestOption customizes an InvocationRequest built by NewInvocationRequest.
type RequestOption func(*requestOptions)

type requestOptions struct {
	mode          InvocationMode
	qualifier     string
	clientContext map[string]any
	tailLogs      bool
}

func WithMode(m InvocationMode) RequestOption {
	return func(o *requestOptions) { o.mode = m }
}

func WithQualifier(q string) RequestOption {
	return func(o *requestOptions) { o.qualifier = q }
}

func WithClientContext(cc map[string]any) RequestOption {
	return func(o *requestOptions) { o.clientContext = cc }
}

func WithTailLogs() RequestOption {
	return func(o *requestOptions) { o.tailLogs = true }
}

// NewInvocationRequest builds a request. Without WithMode the request is
// synchronous.
func NewInvocationRequest[P any](functionName string, payload P, opts ...RequestOption) InvocationRequest[P] {
	o := requestOptions{mode: ModeRequestResponse}
	for _, opt := range opts {
		opt(&o)
	}
	return InvocationRequest[P]{
		FunctionName:  functionName,
		Mode:          o.mode.OrDefault(),
		Payload:       payload,
		Qualifier:     o.qualifier,
		ClientContext: o.clientContext,
		TailLogs:      o.tailLogs,
	}
}

// Validate checks the request locally, before anything is sent.
func (r InvocationRequest[P]) Validate() error {
	if r.FunctionName == "" {
		return &Error{
			Kind:    KindValidation,
			Op:      "invoke",
			Message: "function name is required",
		}
	}
	if !r.Mode.IsValid() {
		return &Error{
			Kind:    KindValidation,
			Op:      "invoke",
			Target:  r.FunctionName,
			Message: fmt.Sprintf("invalid invocation mode %q", r.Mode),
		}
	}
	if r.TailLogs && r.Mode.OrDefault() != ModeRequestResponse {
		return &Error{
			Kind:    KindValidation,
			Op:      "invoke",
			Target:  r.FunctionName,
			Message: "log tail is only available for RequestResponse invocations",
		}
	}
	return nil
}

// Envelope derives the wire envelope, encoding the payload with encode at
// call time. Nothing is cached on the request.
func (r InvocationRequest[P]) Envelope(encode func(any) ([]byte, error)) (Envelope, error) {
	if err := r.Validate(); err != nil {
		return Envelope{}, err
	}
	payload, err := encode(r.Payload)
	if err != nil {
		return Envelope{}, withTarget(err, "invoke", r.FunctionName)
	}
	env := Envelope{
		FunctionName: r.FunctionName,
		Mode:         r.Mode.OrDefault(),
		Payload:      payload,
		Qualifier:    r.Qualifier,
		TailLogs:     r.TailLogs,
	}
	if len(r.ClientContext) > 0 {
		raw, err := encode(r.ClientContext)
		if err != nil {
			return Envelope{}, withTarget(err, "invoke", r.FunctionName)
		}
		env.ClientContext = base64.StdEncoding.EncodeToString(raw)
	}
	return env, nil
}

// Envelope is the payload-type independent unit exchanged with the transport.
type Envelope struct {
	FunctionName  string
	Mode          InvocationMode
	Payload       []byte
	Qualifier     string
	ClientContext string // base64-encoded JSON
	TailLogs      bool
}

// Validate applies the same local checks as InvocationRequest.Validate to an
// envelope built by hand.
func (e Envelope) Validate() error {
	req := InvocationRequest[struct{}]{FunctionName: e.FunctionName, Mode: e.Mode, TailLogs: e.TailLogs}
	return req.Validate()
}

// RawResponse is what the transport reports for one invocation.
type RawResponse struct {
	StatusCode      int
	Payload         []byte
	FunctionError   string
	ExecutedVersion string
	LogResult       string // base64-encoded log tail
}

// InvocationResponse is the typed result of one invocation.
//
// When the function raised, FunctionError holds the service's error
// category ("Handled" or "Unhandled"), RawPayload holds the runtime's
// error document and Payload is left at its zero value.
type InvocationResponse[R any] struct {
	Payload         R
	StatusCode      int
	ExecutedVersion string
	LogTail         string
	FunctionError   string
	RawPayload      []byte
}

// FunctionFailure is the document the runtime returns when the function
// itself raised an error.
type FunctionFailure struct {
	ErrorMessage string   `json:"errorMessage" yaml:"errorMessage"`
	ErrorType    string   `json:"errorType,omitempty" yaml:"errorType,omitempty"`
	StackTrace   []string `json:"stackTrace,omitempty" yaml:"stackTrace,omitempty"`
}

// ParseFunctionFailure reads a runtime error document. Payloads that are not
// the expected shape are kept verbatim in ErrorMessage.
func ParseFunctionFailure(payload []byte) *FunctionFailure {
	var f FunctionFailure
	if err := json.Unmarshal(payload, &f); err != nil || f.ErrorMessage == "" {
		return &FunctionFailure{ErrorMessage: string(payload)}
	}
	return &f
}

// DecodeLogTail returns the decoded execution log tail, or the raw value if
// it is not valid base64.
func (r *RawResponse) DecodeLogTail() string {
	if r.LogResult == "" {
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(r.LogResult)
	if err != nil {
		return r.LogResult
	}
	return string(b)
}
