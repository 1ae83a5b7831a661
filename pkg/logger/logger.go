package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

const (
	// EnvVarLogLevel is the environment variable name for setting the log level.
	EnvVarLogLevel = "LOG_LEVEL"

	// EnvVarLogFormat is the environment variable name for selecting the log format (json or text).
	EnvVarLogFormat = "LOG_FORMAT"

	// FormatJSON emits one JSON object per record.
	FormatJSON = "json"

	// FormatText emits logfmt-style key=value records.
	FormatText = "text"
)

// Options controls how the structured logger is built.
type Options struct {
	// Module is added to every record as the "module" attribute.
	Module string

	// Version is added to every record as the "version" attribute.
	Version string

	// Level is the minimum level as a string (debug, info, warn, error).
	Level string

	// Format is either FormatJSON (default) or FormatText.
	Format string

	// Writer receives the records. Defaults to os.Stderr.
	Writer io.Writer
}

// New creates a structured logger from the provided options.
// AddSource is enabled for debug level logging only.
func New(opts Options) *slog.Logger {
	lev := ParseLogLevel(opts.Level)

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	ho := &slog.HandlerOptions{
		Level:     lev,
		AddSource: lev <= slog.LevelDebug,
	}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatText) {
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}

	return slog.New(h).With("module", opts.Module, "version", opts.Version)
}

// NewLogLogger creates a standard library log.Logger that writes through slog.
// The HTTP server uses it as its ErrorLog.
func NewLogLogger(level slog.Level, withSource bool) *log.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: withSource,
	})

	return slog.NewLogLogger(handler, level)
}

// ParseLogLevel converts a string representation of a log level into a slog.Level.
// Unrecognized values map to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	var lev slog.Level

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lev = slog.LevelDebug
	case "warn", "warning":
		lev = slog.LevelWarn
	case "error":
		lev = slog.LevelError
	default:
		lev = slog.LevelInfo
	}

	return lev
}
