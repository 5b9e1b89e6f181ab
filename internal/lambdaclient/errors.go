package lambdaclient

import (
	"context"
	"errors"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/oriys/lambdakit/internal/domain"
)

// retryableCodes lists service error codes where repeating the same call
// later can succeed. Everything else needs the caller to change something.
var retryableCodes = map[string]bool{
	// Lambda
	"TooManyRequestsException":  true,
	"ServiceException":          true,
	"EC2ThrottledException":     true,
	"EC2UnexpectedException":    true,
	"ResourceNotReadyException": true,
	"EFSMountTimeoutException":  true,
	"EFSIOException":            true,
	// STS
	"IDPCommunicationError": true,
	"Throttling":            true,
}

// classify turns an SDK error into a *domain.Error of the given remote kind,
// or KindCancelled when the caller's context ended. The SDK error stays in
// the chain.
func classify(ctx context.Context, err error, kind domain.ErrorKind, op, target string) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.Error{
			Kind:    domain.KindCancelled,
			Op:      op,
			Target:  target,
			Message: "request cancelled before the service replied",
			Err:     err,
		}
	}

	e := &domain.Error{Kind: kind, Op: op, Target: target, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e.Code = apiErr.ErrorCode()
		e.Message = apiErr.ErrorMessage()
		e.Retryable = retryableCodes[e.Code] || apiErr.ErrorFault() == smithy.FaultServer
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		e.StatusCode = respErr.HTTPStatusCode()
	}

	if e.Message == "" {
		e.Message = err.Error()
	}
	return e
}
