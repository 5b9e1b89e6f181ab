// Package lambdaclient is the transport used by the gateway and the broker:
// Lambda Invoke and STS AssumeRole over the AWS SDK for Go v2.
//
// Each SDK client sits behind a one-method interface so tests can stub it
// with a plain function. Retries are whatever the SDK is configured to do
// (Config.MaxAttempts); nothing in this package retries on its own.
package lambdaclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/oriys/lambdakit/internal/domain"
)

// LambdaAPI is the part of *lambda.Client used here.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// STSAPI is the part of *sts.Client used here.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Config selects the region and endpoint for both services.
type Config struct {
	Region string `json:"region" yaml:"region"`
	// Endpoint overrides the service endpoint, e.g. a LocalStack URL.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Profile selects a shared-config profile for the default chain.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
	// MaxAttempts is handed to the SDK retryer. Zero keeps the SDK default.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Client implements SubmitInvocation and ExchangeRole. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	lambda LambdaAPI
	sts    STSAPI
}

// New builds a Client using the default credentials chain (environment,
// shared config, instance role).
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return fromAWSConfig(awsCfg, cfg), nil
}

// NewWithCredentials builds a Client signed with the given temporary
// credentials. They are used as-is until they expire.
func NewWithCredentials(ctx context.Context, creds domain.TemporaryCredentials, cfg Config) (*Client, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "new-client",
			Message: "access key id and secret access key are required",
		}
	}
	provider := credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	awsCfg, err := loadAWSConfig(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}
	return fromAWSConfig(awsCfg, cfg), nil
}

// NewFromAPIs wires pre-built service clients. Either may be nil if the
// caller only needs one side.
func NewFromAPIs(l LambdaAPI, s STSAPI) *Client {
	return &Client{lambda: l, sts: s}
}

func loadAWSConfig(ctx context.Context, cfg Config, provider aws.CredentialsProvider) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" && provider == nil {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	if provider != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(provider))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		return aws.Config{}, &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "new-client",
			Message: "region is required (set it in config, --region or AWS_REGION)",
		}
	}
	return awsCfg, nil
}

func fromAWSConfig(awsCfg aws.Config, cfg Config) *Client {
	lc := lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	sc := sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Client{lambda: lc, sts: sc}
}
