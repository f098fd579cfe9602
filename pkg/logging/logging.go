// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is below debug; it is what the "trace" level name selects.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel converts a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// Options configures Setup.
type Options struct {
	Level slog.Level
	// Syslog, if set, also receives every record.
	Syslog *SyslogClient
}

// Setup installs a text handler writing to w as the default logger and
// returns it.
func Setup(w io.Writer, opts Options) *slog.Logger {
	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
	})
	if opts.Syslog != nil {
		h = NewSyslogHandler(h, opts.Syslog)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
