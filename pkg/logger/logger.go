package logger

import (
	"io"
	"log/slog"
	"os"
)

// Config contains logger configuration options.
type Config struct {
	// Level is the minimum level to log: debug, info, warn, error.
	Level string
	// JSON enables JSON output instead of text.
	JSON bool
	// Output is where logs are written (defaults to os.Stderr).
	Output io.Writer
	// AddSource adds source file/line information to records.
	AddSource bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		JSON:   true,
		Output: os.Stderr,
	}
}

// Logger wraps slog for structured logging.
type Logger struct {
	*slog.Logger
}

var global *Logger

// New creates a logger from the given configuration.
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	var level slog.Level
	switch config.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: config.AddSource}
	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	l := &Logger{Logger: slog.New(handler)}
	if global == nil {
		global = l
	}
	return l
}

// SetGlobal replaces the package-level logger instance.
func SetGlobal(l *Logger) {
	global = l
}

// Get returns the package-level logger, creating a default one if needed.
func Get() *Logger {
	if global == nil {
		global = New(DefaultConfig())
	}
	return global
}

// LogError logs an error with an explanatory message and extra fields.
func (l *Logger) LogError(err error, msg string, args ...any) {
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// WithComponent tags every record with the emitting component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With("component", name)}
}

// WithOrgID tags every record with the acting organization id.
func (l *Logger) WithOrgID(orgID string) *Logger {
	if orgID == "" {
		return l
	}
	return &Logger{Logger: l.With("org_id", orgID)}
}
