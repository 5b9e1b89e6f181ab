package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/lambdakit/internal/domain"
)

// Format represents output format
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "wide":
		return FormatWide
	default:
		return FormatTable
	}
}

// Printer handles formatted output
type Printer struct {
	format  Format
	writer  io.Writer
	noColor bool
}

// NewPrinter creates a new printer
func NewPrinter(format Format) *Printer {
	return &Printer{
		format:  format,
		writer:  os.Stdout,
		noColor: os.Getenv("NO_COLOR") != "",
	}
}

// SetWriter sets the output writer
func (p *Printer) SetWriter(w io.Writer) {
	p.writer = w
}

// SetNoColor disables ANSI colors
func (p *Printer) SetNoColor(v bool) {
	p.noColor = v
}

func (p *Printer) structured() bool {
	return p.format == FormatJSON || p.format == FormatYAML
}

// Print outputs data in the configured format
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatYAML:
		return p.printYAML(data)
	default:
		return p.printJSON(data)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p *Printer) printYAML(data interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// Color codes
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
)

// Colorize adds color to text
func (p *Printer) Colorize(color, text string) string {
	if p.noColor {
		return text
	}
	return color + text + Reset
}

// TableWriter creates a tabwriter for aligned output
func (p *Printer) TableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
}

// InvokeResult represents invocation result
type InvokeResult struct {
	RequestID       string                  `json:"request_id" yaml:"request_id"`
	Function        string                  `json:"function" yaml:"function"`
	Mode            string                  `json:"mode" yaml:"mode"`
	StatusCode      int                     `json:"status_code" yaml:"status_code"`
	ExecutedVersion string                  `json:"executed_version,omitempty" yaml:"executed_version,omitempty"`
	Success         bool                    `json:"success" yaml:"success"`
	Output          any                     `json:"output,omitempty" yaml:"output,omitempty"`
	Error           string                  `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind       string                  `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorCode       string                  `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	FunctionError   string                  `json:"function_error,omitempty" yaml:"function_error,omitempty"`
	Retryable       bool                    `json:"retryable,omitempty" yaml:"retryable,omitempty"`
	Failure         *domain.FunctionFailure `json:"failure,omitempty" yaml:"failure,omitempty"`
	LogTail         string                  `json:"log_tail,omitempty" yaml:"log_tail,omitempty"`
	DurationMs      int64                   `json:"duration_ms" yaml:"duration_ms"`
}

// NewInvokeResult builds a result from one call. resp and err may both be
// set when the function raised.
func NewInvokeResult(requestID, function string, mode domain.InvocationMode, resp *domain.InvocationResponse[any], err error, elapsed time.Duration) InvokeResult {
	r := InvokeResult{
		RequestID:  requestID,
		Function:   function,
		Mode:       string(mode.OrDefault()),
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
	}
	if resp != nil {
		r.StatusCode = resp.StatusCode
		r.ExecutedVersion = resp.ExecutedVersion
		r.Output = resp.Payload
		r.LogTail = resp.LogTail
		r.FunctionError = resp.FunctionError
	}
	if err != nil {
		r.Error = err.Error()
		r.ErrorKind = string(domain.KindOf(err))
		r.ErrorCode = domain.CodeOf(err)
		r.Retryable = domain.IsRetryable(err)
		var e *domain.Error
		if errors.As(err, &e) {
			if r.StatusCode == 0 {
				r.StatusCode = e.StatusCode
			}
			r.Failure = e.Failure
		}
	}
	return r
}

// PrintInvokeResult prints invocation result
func (p *Printer) PrintInvokeResult(result InvokeResult) error {
	if p.structured() {
		return p.Print(result)
	}

	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Function:"), p.Colorize(Cyan, result.Function))
	fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Mode:"), result.Mode)
	if result.StatusCode != 0 {
		fmt.Fprintf(p.writer, "%s %d\n", p.Colorize(Bold, "Status:"), result.StatusCode)
	}
	if p.format == FormatWide {
		fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Request ID:"), result.RequestID)
		if result.ExecutedVersion != "" {
			fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Version:"), result.ExecutedVersion)
		}
	}
	fmt.Fprintf(p.writer, "%s %d ms\n", p.Colorize(Bold, "Duration:"), result.DurationMs)

	if result.Error != "" {
		fmt.Fprintf(p.writer, "%s %s\n", p.Colorize(Bold, "Error:"), p.Colorize(Red, result.Error))
		if result.Retryable {
			fmt.Fprintf(p.writer, "%s\n", p.Colorize(Yellow, "(the service marked this error retryable)"))
		}
		if f := result.Failure; f != nil && len(f.StackTrace) > 0 {
			fmt.Fprintf(p.writer, "%s\n", p.Colorize(Bold, "Stack:"))
			for _, line := range f.StackTrace {
				fmt.Fprintf(p.writer, "  %s\n", p.Colorize(Gray, line))
			}
		}
	} else if result.Output != nil {
		fmt.Fprintf(p.writer, "%s\n", p.Colorize(Bold, "Output:"))
		formatted, err := json.MarshalIndent(result.Output, "", "  ")
		if err != nil {
			fmt.Fprintln(p.writer, result.Output)
		} else {
			fmt.Fprintln(p.writer, string(formatted))
		}
	}

	if result.LogTail != "" {
		fmt.Fprintf(p.writer, "%s\n", p.Colorize(Bold, "Log tail:"))
		for _, line := range strings.Split(strings.TrimRight(result.LogTail, "\n"), "\n") {
			fmt.Fprintf(p.writer, "  %s\n", p.Colorize(Gray, line))
		}
	}
	return nil
}

// CredentialsView is the printable form of temporary credentials.
type CredentialsView struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
	Expiration      string `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	AssumedRoleARN  string `json:"assumed_role_arn,omitempty" yaml:"assumed_role_arn,omitempty"`
	AssumedRoleID   string `json:"assumed_role_id,omitempty" yaml:"assumed_role_id,omitempty"`
}

// NewCredentialsView masks the secret and token unless showSecrets is set.
func NewCredentialsView(c domain.TemporaryCredentials, showSecrets bool) CredentialsView {
	v := CredentialsView{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		AssumedRoleARN:  c.AssumedRoleARN,
		AssumedRoleID:   c.AssumedRoleID,
	}
	if !c.Expiration.IsZero() {
		v.Expiration = c.Expiration.UTC().Format(time.RFC3339)
	}
	if !showSecrets {
		v.SecretAccessKey = Mask(v.SecretAccessKey)
		v.SessionToken = Mask(v.SessionToken)
	}
	return v
}

// Mask keeps the last four characters of s.
func Mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}

// PrintCredentials prints assumed-role credentials
func (p *Printer) PrintCredentials(v CredentialsView) error {
	if p.structured() {
		return p.Print(v)
	}

	w := p.TableWriter()
	fmt.Fprintln(w, p.Colorize(Bold, "FIELD\tVALUE"))
	fmt.Fprintf(w, "AccessKeyId\t%s\n", p.Colorize(Cyan, v.AccessKeyID))
	fmt.Fprintf(w, "SecretAccessKey\t%s\n", v.SecretAccessKey)
	fmt.Fprintf(w, "SessionToken\t%s\n", v.SessionToken)
	if v.Expiration != "" {
		fmt.Fprintf(w, "Expiration\t%s\n", v.Expiration)
	}
	if p.format == FormatWide {
		if v.AssumedRoleARN != "" {
			fmt.Fprintf(w, "AssumedRoleArn\t%s\n", v.AssumedRoleARN)
		}
		if v.AssumedRoleID != "" {
			fmt.Fprintf(w, "AssumedRoleId\t%s\n", v.AssumedRoleID)
		}
	}
	return w.Flush()
}

// PrintEnv prints the credentials as shell exports.
func (p *Printer) PrintEnv(c domain.TemporaryCredentials) {
	fmt.Fprintf(p.writer, "export AWS_ACCESS_KEY_ID=%s\n", c.AccessKeyID)
	fmt.Fprintf(p.writer, "export AWS_SECRET_ACCESS_KEY=%s\n", c.SecretAccessKey)
	fmt.Fprintf(p.writer, "export AWS_SESSION_TOKEN=%s\n", c.SessionToken)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Green, "✓ ")+msg)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Red, "✗ ")+msg)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Yellow, "⚠ ")+msg)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.writer, p.Colorize(Blue, "ℹ ")+msg)
}
