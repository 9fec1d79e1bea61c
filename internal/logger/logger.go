// Package logger is the process-wide structured logger of the bagfetch CLI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Fields are key/value pairs attached to a log line. Keys are emitted in
// sorted order so lines are stable across runs.
type Fields map[string]interface{}

// OutputFormat selects the log handler.
type OutputFormat string

// Supported output formats.
const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
	level  = new(slog.LevelVar)
	format = FormatText
	// testOutput replaces stdout while a test captures log lines.
	testOutput io.Writer
)

// SetTestOutput sends log lines to w until UnsetTestOutput is called.
func SetTestOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	testOutput = w
	logger = nil
}

// UnsetTestOutput restores stdout.
func UnsetTestOutput() {
	mu.Lock()
	defer mu.Unlock()
	testOutput = nil
	logger = nil
}

// ParseFormat maps a configuration value to an OutputFormat, defaulting to
// text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// ParseLevel maps a configuration value to a slog level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger sets the level and handler format of the process logger.
func InitLogger(logLevel string, f OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(ParseLevel(logLevel))
	format = f
	logger = slog.New(newHandler())
}

func newHandler() slog.Handler {
	out := testOutput
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// GetLogger returns the process logger, creating a text logger at the
// current level on first use.
func GetLogger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = slog.New(newHandler())
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, fields ...Fields) {
	GetLogger().Debug(msg, attrs(fields)...)
}

// Info logs at info level.
func Info(msg string, fields ...Fields) {
	GetLogger().Info(msg, attrs(fields)...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...Fields) {
	GetLogger().Warn(msg, attrs(fields)...)
}

// Error logs at error level.
func Error(msg string, fields ...Fields) {
	GetLogger().Error(msg, attrs(fields)...)
}

// Success logs at info level with status=success.
func Success(msg string, fields ...Fields) {
	GetLogger().Info(msg, append(attrs(fields), "status", "success")...)
}

// attrs flattens fields into slog key/value pairs. Later maps win on
// duplicate keys.
func attrs(fields []Fields) []interface{} {
	merged := Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, merged[k])
	}
	return out
}
