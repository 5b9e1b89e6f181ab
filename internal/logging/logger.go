package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RequestLog is one invocation log entry.
type RequestLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	Function   string    `json:"function"`
	Mode       string    `json:"mode"`
	StatusCode int       `json:"status_code,omitempty"`
	Version    string    `json:"version,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	InputSize  int       `json:"input_size"`
	OutputSize int       `json:"output_size,omitempty"`
}

// Logger writes request log entries as a console line and, optionally, as
// JSON lines to a file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    io.WriteCloser
	console io.Writer
	now     func() time.Time
}

var defaultLogger = &Logger{enabled: true, console: os.Stderr, now: time.Now}

// Default returns the process-wide request logger.
func Default() *Logger {
	return defaultLogger
}

// New returns a Logger writing console lines to console (nil disables them).
func New(console io.Writer) *Logger {
	return &Logger{enabled: true, console: console, now: time.Now}
}

// SetOutput appends JSON lines to path.
func (l *Logger) SetOutput(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.SetFile(f)
	return nil
}

// SetFile sets the JSON-lines sink, closing any previous one.
func (l *Logger) SetFile(w io.WriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = w
}

// SetConsole sets the console writer; nil disables console lines.
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	l.console = w
	l.mu.Unlock()
}

func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Log writes one entry. The Timestamp is set here.
func (l *Logger) Log(entry *RequestLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = l.now()

	if l.console != nil {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		code := ""
		if entry.StatusCode != 0 {
			code = fmt.Sprintf(" %d", entry.StatusCode)
		}
		fmt.Fprintf(l.console, "[invoke] %s %s %s %s%s %dms\n",
			status, entry.RequestID, entry.Function, entry.Mode, code, entry.DurationMs)
		if entry.Error != "" {
			fmt.Fprintf(l.console, "[invoke]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the JSON-lines sink.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

type requestIDKey struct{}

// WithRequestID attaches a caller-chosen request id to ctx. Invocations
// made with ctx are logged under that id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
