package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ConsoleLogger writes human-readable lines. Colors are only
// used when the output is a terminal.
type ConsoleLogger struct {
	mu      *sync.Mutex
	output  io.Writer
	color   bool
	verbose bool
	fields  map[string]any
}

// NewConsoleLogger creates a console logger on stdout. When
// verbose is true, debug messages are emitted.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	return NewConsoleLoggerTo(os.Stdout, verbose)
}

// NewConsoleLoggerTo creates a console logger on w.
func NewConsoleLoggerTo(w io.Writer, verbose bool) *ConsoleLogger {
	return &ConsoleLogger{
		mu:      &sync.Mutex{},
		output:  w,
		color:   isTerminal(w),
		verbose: verbose,
		fields:  make(map[string]any),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *ConsoleLogger) paint(style lipgloss.Style, s string) string {
	if !c.color {
		return s
	}
	return style.Render(s)
}

func (c *ConsoleLogger) log(
	level LogLevel, style lipgloss.Style, msg string, fields ...Field,
) {
	merged := make(map[string]any, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}

	var fieldStr string
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, merged[k]))
		}
		fieldStr = " " + c.paint(styleMuted,
			"{"+strings.Join(parts, ", ")+"}")
	}

	ts := time.Now().Format("15:04:05")
	line := fmt.Sprintf("%s [%s] %s%s",
		c.paint(styleMuted, ts),
		c.paint(style, fmt.Sprintf("%-5s", level.String())),
		msg, fieldStr,
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.output, line)
}

// Info logs an informational message.
func (c *ConsoleLogger) Info(msg string, fields ...Field) {
	c.log(LevelInfo, styleInfo, msg, fields...)
}

// Warn logs a warning message.
func (c *ConsoleLogger) Warn(msg string, fields ...Field) {
	c.log(LevelWarn, styleWarn, msg, fields...)
}

// Error logs an error message.
func (c *ConsoleLogger) Error(msg string, fields ...Field) {
	c.log(LevelError, styleError, msg, fields...)
}

// Debug logs a debug message only if verbose is enabled.
func (c *ConsoleLogger) Debug(msg string, fields ...Field) {
	if c.verbose {
		c.log(LevelDebug, styleDebug, msg, fields...)
	}
}

// WithFields returns a new Logger with additional default
// fields.
func (c *ConsoleLogger) WithFields(
	fields ...Field,
) Logger {
	newFields := make(map[string]any)
	for k, v := range c.fields {
		newFields[k] = v
	}
	for _, f := range fields {
		newFields[f.Key] = f.Value
	}
	return &ConsoleLogger{
		mu:      c.mu,
		output:  c.output,
		color:   c.color,
		verbose: c.verbose,
		fields:  newFields,
	}
}

// LogAPIRequest logs a request summary at debug level.
func (c *ConsoleLogger) LogAPIRequest(
	request APIRequestLog,
) {
	c.Debug("API request",
		StringField("request_id", request.RequestID),
		StringField("method", request.Method),
		StringField("url", request.URL),
	)
}

// LogAPIResponse logs a response summary at debug level.
func (c *ConsoleLogger) LogAPIResponse(
	response APIResponseLog,
) {
	c.Debug("API response",
		StringField("request_id", response.RequestID),
		IntField("status", response.StatusCode),
		Int64Field("time_ms", response.ResponseTimeMs),
	)
}

// LogInference logs a provider exchange summary. Failures are
// shown as warnings.
func (c *ConsoleLogger) LogInference(
	exchange InferenceLog,
) {
	fields := []Field{
		StringField("provider", exchange.Provider),
		Int64Field("latency_ms", exchange.LatencyMs),
		IntField("prompt_chars", exchange.PromptChars),
	}
	if exchange.Error != "" {
		c.Warn("inference failed",
			append(fields, StringField("error", exchange.Error))...)
		return
	}
	c.Debug("inference", fields...)
}

// Close is a no-op for ConsoleLogger.
func (c *ConsoleLogger) Close() error {
	return nil
}
