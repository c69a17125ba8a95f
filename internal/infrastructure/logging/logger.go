package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pillfleet/pillfleet-core/internal/infrastructure/config"
)

// Logger is the slog.Logger every PillFleet component receives,
// carrying service and version as default attributes so fleet logs
// from several Core instances stay attributable.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml.
//
// Format selects the handler: "text" for a human at a terminal,
// anything else gets JSON for the log pipeline. Unknown levels fall
// back to info rather than failing startup.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Build version stamped on every record
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "pillfleet"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel maps the config string to a slog.Level, defaulting to
// info for anything unrecognised.
func parseLevel(level string) slog.Level {
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

// With returns a Logger carrying extra default attributes.
//
//	scheduleLog := log.With("component", "schedule")
//	scheduleLog.Info("published") // includes component=schedule
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before configuration loads:
// JSON to stdout at info level. Replace it with New as soon as the
// config file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
