// Package logging provides structured logging for test runs with
// JSON, console, and multi-destination output, plus dedicated
// logs for model provider traffic.
package logging

import (
	"fmt"
	"strings"
)

// Logger defines the interface for structured run logging.
type Logger interface {
	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning message.
	Warn(msg string, fields ...Field)

	// Error logs an error message.
	Error(msg string, fields ...Field)

	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// WithFields returns a Logger with additional default
	// fields attached to every subsequent log entry.
	WithFields(fields ...Field) Logger

	// LogAPIRequest logs an outbound HTTP request.
	LogAPIRequest(request APIRequestLog)

	// LogAPIResponse logs an inbound HTTP response.
	LogAPIResponse(response APIResponseLog)

	// LogInference logs one model provider exchange.
	LogInference(exchange InferenceLog)

	// Close flushes any buffers and releases resources.
	Close() error
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// APIRequestLog captures HTTP request details.
type APIRequestLog struct {
	Timestamp  string            `json:"timestamp"`
	RequestID  string            `json:"request_id"`
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	BodyLength int               `json:"body_length"`
}

// APIResponseLog captures HTTP response details.
type APIResponseLog struct {
	Timestamp      string            `json:"timestamp"`
	RequestID      string            `json:"request_id"`
	StatusCode     int               `json:"status_code"`
	Headers        map[string]string `json:"headers"`
	BodyPreview    string            `json:"body_preview,omitempty"`
	BodyLength     int               `json:"body_length"`
	ResponseTimeMs int64             `json:"response_time_ms"`
}

// InferenceLog captures one prompt/response exchange with a
// model provider.
type InferenceLog struct {
	Timestamp       string  `json:"timestamp"`
	RequestID       string  `json:"request_id"`
	Provider        string  `json:"provider"`
	Model           string  `json:"model,omitempty"`
	Temperature     float64 `json:"temperature"`
	PromptChars     int     `json:"prompt_chars"`
	PromptPreview   string  `json:"prompt_preview,omitempty"`
	ImagePath       string  `json:"image_path,omitempty"`
	ResponseChars   int     `json:"response_chars"`
	ResponsePreview string  `json:"response_preview,omitempty"`
	LatencyMs       int64   `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

// LogLevel represents logging severity levels.
type LogLevel int

const (
	// LevelDebug is the most verbose level.
	LevelDebug LogLevel = iota
	// LevelInfo is the default level.
	LevelInfo
	// LevelWarn indicates potential issues.
	LevelWarn
	// LevelError indicates failures.
	LevelError
)

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Preview truncates s to at most n runes, marking the cut.
func Preview(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
