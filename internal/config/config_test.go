package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Log.Level != "info" || cfg.Output != "table" || cfg.Metrics.Namespace != "lambdakit" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Tracing.Enabled {
		t.Fatal("tracing should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := writeFile(t, "lambdakit.yaml", `
aws:
  region: eu-west-1
  endpoint: http://localhost:4566
  max_attempts: 5
role:
  arn: arn:aws:iam::123456789012:role/invoker
  session_name: ci-runner
  duration: 30m
log:
  level: debug
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.AWS.Region != "eu-west-1" || cfg.AWS.MaxAttempts != 5 {
		t.Fatalf("aws section: %+v", cfg.AWS)
	}
	if cfg.Role.Duration != 30*time.Minute || cfg.Role.SessionName != "ci-runner" {
		t.Fatalf("role section: %+v", cfg.Role)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("log section: %+v", cfg.Log)
	}
	client := cfg.AWS.Client()
	if client.Endpoint != "http://localhost:4566" || client.Region != "eu-west-1" {
		t.Fatalf("client config: %+v", client)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := writeFile(t, "lambdakit.json", `{"aws":{"region":"us-east-1"},"output":"json","tracing":{"enabled":true,"exporter":"none"}}`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.AWS.Region != "us-east-1" || cfg.Output != "json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	obs := cfg.Tracing.Observability()
	if !obs.Enabled || obs.Exporter != "none" || obs.ServiceName != "lambdakit" {
		t.Fatalf("tracing: %+v", obs)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := writeFile(t, "broken.json", `{"aws":`)
	if _, err := LoadFromFile(path); err == nil || !strings.Contains(err.Error(), "broken.json") {
		t.Fatalf("err = %v, want parse error naming the file", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LAMBDAKIT_AWS_REGION", "ap-southeast-2")
	t.Setenv("LAMBDAKIT_AWS_MAX_ATTEMPTS", "2")
	t.Setenv("LAMBDAKIT_ROLE_SESSION_NAME", "from-env")
	t.Setenv("LAMBDAKIT_ROLE_DURATION", "1h")
	t.Setenv("LAMBDAKIT_TRACING_ENABLED", "true")

	cfg := DefaultConfig()
	cfg.AWS.Profile = "kept"
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.AWS.Region != "ap-southeast-2" || cfg.AWS.MaxAttempts != 2 {
		t.Fatalf("aws: %+v", cfg.AWS)
	}
	if cfg.Role.SessionName != "from-env" || cfg.Role.Duration != time.Hour {
		t.Fatalf("role: %+v", cfg.Role)
	}
	if !cfg.Tracing.Enabled {
		t.Fatal("tracing not enabled from env")
	}
	if cfg.AWS.Profile != "kept" || cfg.Log.Level != "info" {
		t.Fatalf("unset variables changed values: %+v", cfg)
	}
}

func TestLoadFromEnvRejectsBadValue(t *testing.T) {
	t.Setenv("LAMBDAKIT_AWS_MAX_ATTEMPTS", "many")
	if err := LoadFromEnv(DefaultConfig()); err == nil {
		t.Fatal("expected error for non-numeric max attempts")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative attempts", func(c *Config) { c.AWS.MaxAttempts = -1 }},
		{"bad session name", func(c *Config) { c.Role.SessionName = "bad name!" }},
		{"short duration", func(c *Config) { c.Role.Duration = time.Minute }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }},
		{"output", func(c *Config) { c.Output = "csv" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
