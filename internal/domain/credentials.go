package domain

import "time"

// TemporaryCredentials are the short-lived keys issued by a role exchange.
// They are never refreshed here; callers assume the role again when
// Expired reports true.
type TemporaryCredentials struct {
	AccessKeyID     string    `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string    `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string    `json:"session_token" yaml:"session_token"`
	Expiration      time.Time `json:"expiration" yaml:"expiration"`

	AssumedRoleARN string `json:"assumed_role_arn,omitempty" yaml:"assumed_role_arn,omitempty"`
	AssumedRoleID  string `json:"assumed_role_id,omitempty" yaml:"assumed_role_id,omitempty"`
}

// Expired reports whether the credentials are no longer valid at now.
// A zero Expiration never expires.
func (c *TemporaryCredentials) Expired(now time.Time) bool {
	return c.ExpiresWithin(now, 0)
}

// ExpiresWithin reports whether the credentials expire before now+d.
func (c *TemporaryCredentials) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.Expiration.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.Expiration)
}

// RoleRequest is one role exchange as sent to the authorization service.
type RoleRequest struct {
	RoleARN     string
	SessionName string
	// Duration of zero leaves the service default (one hour).
	Duration   time.Duration
	ExternalID string
}
