package lambdaclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/oriys/lambdakit/internal/domain"
)

var invocationTypes = map[domain.InvocationMode]types.InvocationType{
	domain.ModeRequestResponse: types.InvocationTypeRequestResponse,
	domain.ModeEvent:           types.InvocationTypeEvent,
	domain.ModeDryRun:          types.InvocationTypeDryRun,
}

// SubmitInvocation performs exactly one Lambda Invoke call.
func (c *Client) SubmitInvocation(ctx context.Context, env domain.Envelope) (*domain.RawResponse, error) {
	if c.lambda == nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Op: "invoke", Target: env.FunctionName, Message: "client has no lambda service configured"}
	}
	invType, ok := invocationTypes[env.Mode.OrDefault()]
	if !ok {
		return nil, &domain.Error{Kind: domain.KindValidation, Op: "invoke", Target: env.FunctionName, Message: "invalid invocation mode " + string(env.Mode)}
	}

	in := &lambda.InvokeInput{
		FunctionName:   aws.String(env.FunctionName),
		InvocationType: invType,
		Payload:        env.Payload,
	}
	if env.Qualifier != "" {
		in.Qualifier = aws.String(env.Qualifier)
	}
	if env.ClientContext != "" {
		in.ClientContext = aws.String(env.ClientContext)
	}
	if env.TailLogs {
		in.LogType = types.LogTypeTail
	}

	out, err := c.lambda.Invoke(ctx, in)
	if err != nil {
		return nil, classify(ctx, err, domain.KindRemoteInvocation, "invoke", env.FunctionName)
	}

	return &domain.RawResponse{
		StatusCode:      int(out.StatusCode),
		Payload:         out.Payload,
		FunctionError:   aws.ToString(out.FunctionError),
		ExecutedVersion: aws.ToString(out.ExecutedVersion),
		LogResult:       aws.ToString(out.LogResult),
	}, nil
}
