package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so callers can branch without matching
// strings.
type ErrorKind string

const (
	// KindValidation is malformed local input, detected before any remote call.
	KindValidation ErrorKind = "validation"
	// KindSerialization means a payload could not be encoded or decoded as JSON.
	KindSerialization ErrorKind = "serialization"
	// KindEncoding means wire bytes were not valid UTF-8.
	KindEncoding ErrorKind = "encoding"
	// KindRemoteAuthorization is a rejected credential exchange.
	KindRemoteAuthorization ErrorKind = "remote_authorization"
	// KindRemoteInvocation is a rejected or failed invocation request.
	KindRemoteInvocation ErrorKind = "remote_invocation"
	// KindCancelled means the caller's context ended before the reply arrived.
	KindCancelled ErrorKind = "cancelled"
	// KindFunction means the call succeeded but the function raised.
	KindFunction ErrorKind = "function"
)

// Error is the single structured error type returned by this module.
type Error struct {
	Kind ErrorKind
	// Op is the operation that failed: "invoke", "assume-role", "encode", ...
	Op string
	// Target is the function name or role ARN involved.
	Target string
	// Code is the remote error code, e.g. "ResourceNotFoundException".
	Code    string
	Message string
	// StatusCode is the HTTP status reported by the remote side, if any.
	StatusCode int
	// Retryable hints that the same call may succeed later. Nothing in this
	// module acts on it.
	Retryable bool
	// Failure is set for KindFunction.
	Failure *FunctionFailure
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Target != "" {
			fmt.Fprintf(&b, " %s", e.Target)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	switch {
	case e.Message != "":
		fmt.Fprintf(&b, ": %s", e.Message)
	case e.Failure != nil:
		fmt.Fprintf(&b, ": %s", e.Failure.ErrorMessage)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind using a bare &Error{Kind: k} target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind != "" || t.Code != ""
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the remote error code carried by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// withTarget fills in Op and Target on a copy of a structured error that
// was raised without them. Other errors are returned unchanged.
func withTarget(err error, op, target string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Op != "" && e.Target != "" {
		return err
	}
	cp := *e
	if cp.Op == "" {
		cp.Op = op
	}
	if cp.Target == "" {
		cp.Target = target
	}
	return &cp
}
