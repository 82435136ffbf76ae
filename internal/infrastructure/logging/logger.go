package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mbegale/dwellio-core/internal/infrastructure/config"
)

// Logger is the structured logger handed to every Dwellio Core
// component. It embeds slog.Logger, so call sites use the standard
// Debug/Info/Warn/Error methods; each record carries the service name
// and build version so log shippers can separate Core from the other
// services on a property gateway.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the config file.
// "text" format is for development consoles; anything else emits JSON.
// An unrecognised level falls back to info rather than failing startup,
// since a typo in config.yaml should not take the property offline.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

// NewWithWriter is New with an explicit destination, for tests and for
// callers that capture log output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	base := slog.New(handler).With(
		"service", "dwellio-core",
		"version", version,
	)
	return &Logger{Logger: base}
}

// With returns a child logger carrying additional default attributes.
// Components take a child tagged with their name:
//
//	syncLog := log.With("component", "statesync")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON logger at info level for the window between
// process start and config load. Anything it logs is tagged version
// "dev" because the real version string arrives with the config.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// destination maps the configured output name to a writer. Only stdout
// and stderr are supported; Core does not write its own log files, that
// is the supervisor's job.
func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// levelFor parses a config level string, defaulting to info.
func levelFor(level string) slog.Level {
	switch strings.ToLower(level) {
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
