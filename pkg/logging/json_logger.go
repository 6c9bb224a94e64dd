package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// jsonMarshal is a variable for dependency injection in tests.
var jsonMarshal = json.Marshal

// LogEntry represents a single JSON log entry.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LoggerConfig configures the JSONLogger.
type LoggerConfig struct {
	OutputPath     string
	APIRequestLog  string
	APIResponseLog string
	InferenceLog   string
	Level          LogLevel
	Verbose        bool
	Fields         map[string]any
}

// jsonSink holds the shared writers of a JSONLogger family so
// that WithFields children share one lock and one close.
type jsonSink struct {
	mu             sync.Mutex
	output         io.Writer
	apiRequestLog  io.Writer
	apiResponseLog io.Writer
	inferenceLog   io.Writer
	closed         bool
}

// JSONLogger implements Logger with JSON Lines output.
type JSONLogger struct {
	sink    *jsonSink
	level   LogLevel
	fields  map[string]any
	verbose bool
}

// NewJSONLogger creates a new JSON logger. If OutputPath is
// empty, logs are written to stdout.
func NewJSONLogger(config LoggerConfig) (*JSONLogger, error) {
	logger := &JSONLogger{
		sink:    &jsonSink{output: os.Stdout},
		level:   config.Level,
		verbose: config.Verbose,
		fields:  config.Fields,
	}

	if logger.fields == nil {
		logger.fields = make(map[string]any)
	}

	if config.OutputPath != "" {
		file, err := openAppend(config.OutputPath)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to open log file: %w", err,
			)
		}
		logger.sink.output = file
	}

	side := []struct {
		path string
		dst  *io.Writer
		name string
	}{
		{config.APIRequestLog, &logger.sink.apiRequestLog, "API request log"},
		{config.APIResponseLog, &logger.sink.apiResponseLog, "API response log"},
		{config.InferenceLog, &logger.sink.inferenceLog, "inference log"},
	}
	for _, s := range side {
		if s.path == "" {
			continue
		}
		file, err := openAppend(s.path)
		if err != nil {
			_ = logger.Close()
			return nil, fmt.Errorf(
				"failed to open %s: %w", s.name, err,
			)
		}
		*s.dst = file
	}

	return logger, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(
		path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
	)
}

func (l *JSONLogger) log(
	level LogLevel, msg string, fields ...Field,
) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Fields:    make(map[string]any),
	}

	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for _, f := range fields {
		entry.Fields[f.Key] = f.Value
	}

	l.sink.writeJSON(l.sink.output, entry)
}

func (s *jsonSink) writeJSON(w io.Writer, v any) {
	if w == nil {
		return
	}
	data, err := jsonMarshal(v)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fmt.Fprintln(w, string(data))
}

// Info logs an informational message.
func (l *JSONLogger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *JSONLogger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *JSONLogger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields...)
}

// Debug logs a debug message only if verbose is enabled.
func (l *JSONLogger) Debug(msg string, fields ...Field) {
	if l.verbose {
		l.log(LevelDebug, msg, fields...)
	}
}

// WithFields returns a new Logger with additional default
// fields. The child shares the parent's writers.
func (l *JSONLogger) WithFields(fields ...Field) Logger {
	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for _, f := range fields {
		newFields[f.Key] = f.Value
	}

	return &JSONLogger{
		sink:    l.sink,
		level:   l.level,
		verbose: l.verbose,
		fields:  newFields,
	}
}

// LogAPIRequest logs an HTTP request to the dedicated request
// log.
func (l *JSONLogger) LogAPIRequest(request APIRequestLog) {
	l.sink.writeJSON(l.sink.apiRequestLog, request)
}

// LogAPIResponse logs an HTTP response to the dedicated response
// log.
func (l *JSONLogger) LogAPIResponse(response APIResponseLog) {
	l.sink.writeJSON(l.sink.apiResponseLog, response)
}

// LogInference logs a provider exchange to the inference log.
func (l *JSONLogger) LogInference(exchange InferenceLog) {
	l.sink.writeJSON(l.sink.inferenceLog, exchange)
}

// Close flushes and closes all underlying writers.
func (l *JSONLogger) Close() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, w := range []io.Writer{
		s.output, s.apiRequestLog, s.apiResponseLog, s.inferenceLog,
	} {
		if w == nil || w == os.Stdout {
			continue
		}
		if closer, ok := w.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SetupLogging creates the run loggers in the given logs
// directory. verbose lowers the level to debug.
func SetupLogging(
	logsDir string,
	level LogLevel,
	verbose bool,
) (*JSONLogger, error) {
	config := LoggerConfig{
		OutputPath:     filepath.Join(logsDir, "run.log"),
		APIRequestLog:  filepath.Join(logsDir, "api_requests.log"),
		APIResponseLog: filepath.Join(logsDir, "api_responses.log"),
		InferenceLog:   filepath.Join(logsDir, "inference.log"),
		Level:          level,
		Verbose:        verbose,
	}

	if verbose {
		config.Level = LevelDebug
	}

	return NewJSONLogger(config)
}
