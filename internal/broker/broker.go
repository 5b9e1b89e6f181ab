// Package broker exchanges a role ARN and session name for temporary
// credentials. Every call is an independent exchange: nothing is cached
// and nothing is renewed.
package broker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/lambdakit/internal/domain"
	"github.com/oriys/lambdakit/internal/logging"
	"github.com/oriys/lambdakit/internal/metrics"
	"github.com/oriys/lambdakit/internal/observability"
)

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9=,.@_-]+$`)

const (
	minSessionNameLen = 2
	maxSessionNameLen = 64

	MinDuration = 15 * time.Minute
	MaxDuration = 12 * time.Hour
)

// RoleExchanger performs the remote role exchange.
type RoleExchanger interface {
	ExchangeRole(ctx context.Context, req domain.RoleRequest) (*domain.TemporaryCredentials, error)
}

// Broker validates role requests locally and hands them to a RoleExchanger.
// It is safe for concurrent use.
type Broker struct {
	exchanger RoleExchanger
}

func New(exchanger RoleExchanger) *Broker {
	return &Broker{exchanger: exchanger}
}

// Option adjusts a single AssumeRole call.
type Option func(*domain.RoleRequest)

// WithDuration requests a session lifetime. The service accepts 15m to 12h,
// bounded further by the role's maximum session duration.
func WithDuration(d time.Duration) Option {
	return func(r *domain.RoleRequest) { r.Duration = d }
}

func WithExternalID(id string) Option {
	return func(r *domain.RoleRequest) { r.ExternalID = id }
}

// ValidateSessionName checks the session-name charset and length the
// authorization service enforces.
func ValidateSessionName(name string) error {
	if len(name) < minSessionNameLen || len(name) > maxSessionNameLen {
		return &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "assume-role",
			Message: fmt.Sprintf("session name must be %d-%d characters, got %d", minSessionNameLen, maxSessionNameLen, len(name)),
		}
	}
	if !sessionNamePattern.MatchString(name) {
		return &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "assume-role",
			Message: fmt.Sprintf("invalid session name %q: must match %s", name, sessionNamePattern.String()),
		}
	}
	return nil
}

// GenerateSessionName returns prefix-<8 hex chars>, trimmed to a valid name.
func GenerateSessionName(prefix string) string {
	prefix = strings.Map(func(r rune) rune {
		if r < 128 && sessionNamePattern.MatchString(string(r)) {
			return r
		}
		return '-'
	}, prefix)
	if prefix == "" {
		prefix = "lambdakit"
	}
	name := prefix + "-" + uuid.New().String()[:8]
	if len(name) > maxSessionNameLen {
		name = name[len(name)-maxSessionNameLen:]
	}
	return name
}

// AssumeRole validates the request and performs one remote exchange.
// Remote failures come back as the exchanger reported them.
func (b *Broker) AssumeRole(ctx context.Context, roleARN, sessionName string, opts ...Option) (*domain.TemporaryCredentials, error) {
	req := domain.RoleRequest{RoleARN: roleARN, SessionName: sessionName}
	for _, opt := range opts {
		opt(&req)
	}
	if err := validate(req); err != nil {
		metrics.RecordRoleExchange("validation")
		return nil, err
	}

	ctx, span := observability.StartClientSpan(ctx, "broker.AssumeRole",
		observability.AttrRoleARN.String(roleARN),
		observability.AttrSessionName.String(sessionName),
	)
	defer span.End()

	start := time.Now()
	creds, err := b.exchanger.ExchangeRole(ctx, req)
	if err != nil {
		observability.SetSpanError(span, err)
		metrics.RecordRoleExchange(string(domain.KindOf(err)))
		logging.Op().Warn("assume role failed",
			"role_arn", roleARN,
			"session", sessionName,
			"kind", domain.KindOf(err),
			"code", domain.CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	observability.SetSpanOK(span)
	metrics.RecordRoleExchange("success")
	logging.Op().Debug("assumed role",
		"role_arn", roleARN,
		"session", sessionName,
		"expires", creds.Expiration,
		"duration", time.Since(start),
	)
	return creds, nil
}

func validate(req domain.RoleRequest) error {
	if req.RoleARN == "" {
		return &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "assume-role",
			Message: "role ARN is required",
		}
	}
	if err := ValidateSessionName(req.SessionName); err != nil {
		e := err.(*domain.Error)
		e.Target = req.RoleARN
		return e
	}
	if req.Duration != 0 && (req.Duration < MinDuration || req.Duration > MaxDuration) {
		return &domain.Error{
			Kind:    domain.KindValidation,
			Op:      "assume-role",
			Target:  req.RoleARN,
			Message: fmt.Sprintf("session duration %s outside %s-%s", req.Duration, MinDuration, MaxDuration),
		}
	}
	return nil
}
