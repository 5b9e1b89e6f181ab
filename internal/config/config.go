package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/oriys/lambdakit/internal/broker"
	"github.com/oriys/lambdakit/internal/lambdaclient"
	"github.com/oriys/lambdakit/internal/observability"
	"github.com/oriys/lambdakit/internal/output"
)

// EnvPrefix is prepended to every environment override, e.g.
// LAMBDAKIT_AWS_REGION or LAMBDAKIT_ROLE_SESSION_NAME.
const EnvPrefix = "LAMBDAKIT"

// AWSConfig selects the region and endpoint for Lambda and STS.
type AWSConfig struct {
	Region      string `json:"region" yaml:"region" split_words:"true"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" split_words:"true"`
	Profile     string `json:"profile,omitempty" yaml:"profile,omitempty" split_words:"true"`
	MaxAttempts int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" split_words:"true"`
}

// Client returns the transport configuration.
func (c AWSConfig) Client() lambdaclient.Config {
	return lambdaclient.Config{
		Region:      c.Region,
		Endpoint:    c.Endpoint,
		Profile:     c.Profile,
		MaxAttempts: c.MaxAttempts,
	}
}

// RoleConfig is the role assumed before invoking, if ARN is set.
type RoleConfig struct {
	ARN         string        `json:"arn,omitempty" yaml:"arn,omitempty" split_words:"true"`
	SessionName string        `json:"session_name,omitempty" yaml:"session_name,omitempty" split_words:"true"`
	Duration    time.Duration `json:"duration,omitempty" yaml:"duration,omitempty" split_words:"true"`
	ExternalID  string        `json:"external_id,omitempty" yaml:"external_id,omitempty" split_words:"true"`
}

// LogConfig holds operational and request log settings
type LogConfig struct {
	Level  string `json:"level" yaml:"level" split_words:"true"`
	Format string `json:"format" yaml:"format" split_words:"true"` // text, json
	// RequestFile receives one JSON line per invocation when set.
	RequestFile string `json:"request_file,omitempty" yaml:"request_file,omitempty" split_words:"true"`
}

// TracingConfig mirrors observability.Config with env tags.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" split_words:"true"`
	Exporter    string  `json:"exporter" yaml:"exporter" split_words:"true"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" split_words:"true"`
	ServiceName string  `json:"service_name" yaml:"service_name" split_words:"true"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" split_words:"true"`
}

// Observability returns the tracer configuration.
func (c TracingConfig) Observability() observability.Config {
	return observability.Config{
		Enabled:     c.Enabled,
		Exporter:    c.Exporter,
		Endpoint:    c.Endpoint,
		ServiceName: c.ServiceName,
		SampleRate:  c.SampleRate,
	}
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty" split_words:"true"`
	Namespace string `json:"namespace" yaml:"namespace" split_words:"true"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	AWS     AWSConfig     `json:"aws" yaml:"aws" split_words:"true"`
	Role    RoleConfig    `json:"role" yaml:"role" split_words:"true"`
	Log     LogConfig     `json:"log" yaml:"log" split_words:"true"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing" split_words:"true"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" split_words:"true"`
	Output  string        `json:"output" yaml:"output" split_words:"true"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "lambdakit",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Namespace: "lambdakit",
		},
		Output: string(output.FormatTable),
	}
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or JSON file
// on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies LAMBDAKIT_* overrides to the config. Variables that
// are not set leave the current value alone.
func LoadFromEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.AWS.MaxAttempts < 0 {
		return fmt.Errorf("aws.max_attempts must not be negative")
	}
	if c.Role.SessionName != "" {
		if err := broker.ValidateSessionName(c.Role.SessionName); err != nil {
			return fmt.Errorf("role.session_name: %w", err)
		}
	}
	if d := c.Role.Duration; d != 0 && (d < broker.MinDuration || d > broker.MaxDuration) {
		return fmt.Errorf("role.duration %s outside %s-%s", d, broker.MinDuration, broker.MaxDuration)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}
	switch strings.ToLower(c.Output) {
	case "", "table", "wide", "json", "yaml", "yml":
	default:
		return fmt.Errorf("unknown output format %q", c.Output)
	}
	return nil
}
