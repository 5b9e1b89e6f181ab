package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/lambdakit/internal/broker"
	"github.com/oriys/lambdakit/internal/config"
	"github.com/oriys/lambdakit/internal/domain"
	"github.com/oriys/lambdakit/internal/gateway"
	"github.com/oriys/lambdakit/internal/lambdaclient"
	"github.com/oriys/lambdakit/internal/logging"
)

// roleFlags select an optional role to assume before invoking.
type roleFlags struct {
	arn         string
	sessionName string
	duration    time.Duration
	externalID  string
}

func (r *roleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.arn, "role-arn", "", "Assume this role and invoke with its temporary credentials")
	cmd.Flags().StringVar(&r.sessionName, "session-name", "", "Role session name (generated when empty)")
	cmd.Flags().DurationVar(&r.duration, "duration", 0, "Requested session duration (15m-12h)")
	cmd.Flags().StringVar(&r.externalID, "external-id", "", "External ID required by the role's trust policy")
}

// resolve fills unset flags from the role section of the config.
func (r roleFlags) resolve(cfg config.RoleConfig) roleFlags {
	if r.arn == "" {
		r.arn = cfg.ARN
	}
	if r.sessionName == "" {
		r.sessionName = cfg.SessionName
	}
	if r.sessionName == "" {
		r.sessionName = broker.GenerateSessionName("lambdakit")
	}
	if r.duration == 0 {
		r.duration = cfg.Duration
	}
	if r.externalID == "" {
		r.externalID = cfg.ExternalID
	}
	return r
}

func (r roleFlags) options() []broker.Option {
	var opts []broker.Option
	if r.duration != 0 {
		opts = append(opts, broker.WithDuration(r.duration))
	}
	if r.externalID != "" {
		opts = append(opts, broker.WithExternalID(r.externalID))
	}
	return opts
}

func assumeRole(ctx context.Context, cfg *config.Config, r roleFlags) (*domain.TemporaryCredentials, error) {
	client, err := lambdaclient.New(ctx, cfg.AWS.Client())
	if err != nil {
		return nil, err
	}
	return broker.New(client).AssumeRole(ctx, r.arn, r.sessionName, r.options()...)
}

// buildGateway returns a Gateway on the default credentials chain, or on
// assumed-role credentials when a role ARN is configured.
func buildGateway(ctx context.Context, cfg *config.Config, r roleFlags, opts ...gateway.Option) (*gateway.Gateway, error) {
	opts = append(opts, gateway.WithRequestLogger(logging.Default()))
	r = r.resolve(cfg.Role)
	if r.arn == "" {
		return gateway.NewFromRegion(ctx, cfg.AWS.Client(), opts...)
	}

	creds, err := assumeRole(ctx, cfg, r)
	if err != nil {
		return nil, err
	}
	logging.Op().Debug("invoking with assumed role", "role_arn", r.arn, "session", r.sessionName, "expires", creds.Expiration)
	return gateway.NewFromCredentials(ctx, *creds, cfg.AWS.Client(), opts...)
}

// readPayload returns the payload from --payload or --file, defaulting to
// an empty JSON object.
func readPayload(inline, file string, stdin io.Reader) (json.RawMessage, error) {
	if inline != "" && file != "" {
		return nil, fmt.Errorf("--payload and --file are mutually exclusive")
	}
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		data = b
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(data), nil
}

func loadSchema(path string) (*gateway.PayloadSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	schema, err := gateway.ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return schema, nil
}
