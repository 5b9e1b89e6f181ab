package lambdaclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/oriys/lambdakit/internal/domain"
)

// ExchangeRole performs exactly one STS AssumeRole call.
func (c *Client) ExchangeRole(ctx context.Context, req domain.RoleRequest) (*domain.TemporaryCredentials, error) {
	if c.sts == nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Op: "assume-role", Target: req.RoleARN, Message: "client has no sts service configured"}
	}

	in := &sts.AssumeRoleInput{
		RoleArn:         aws.String(req.RoleARN),
		RoleSessionName: aws.String(req.SessionName),
	}
	if req.Duration > 0 {
		in.DurationSeconds = aws.Int32(int32(req.Duration.Seconds()))
	}
	if req.ExternalID != "" {
		in.ExternalId = aws.String(req.ExternalID)
	}

	out, err := c.sts.AssumeRole(ctx, in)
	if err != nil {
		return nil, classify(ctx, err, domain.KindRemoteAuthorization, "assume-role", req.RoleARN)
	}
	if out.Credentials == nil {
		return nil, &domain.Error{
			Kind:    domain.KindRemoteAuthorization,
			Op:      "assume-role",
			Target:  req.RoleARN,
			Message: "response carried no credentials",
		}
	}

	creds := &domain.TemporaryCredentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiration:      aws.ToTime(out.Credentials.Expiration),
	}
	if out.AssumedRoleUser != nil {
		creds.AssumedRoleARN = aws.ToString(out.AssumedRoleUser.Arn)
		creds.AssumedRoleID = aws.ToString(out.AssumedRoleUser.AssumedRoleId)
	}
	return creds, nil
}
