package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the supervisor's own audit log.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Options controls the operator-facing logger.
type Options struct {
	Level string // debug, info, warn, error
	Color bool   // ANSI colors on the console handler
	// AuditFile, when set, tees every record into a size-rotated file so
	// lifecycle actions remain traceable across one-shot invocations.
	AuditFile string
}

// New builds a slog.Logger writing to w (and optionally a rotated audit
// file) at the configured level.
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: level}

	if opts.AuditFile != "" {
		rot := &lj.Logger{
			Filename:   opts.AuditFile,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
		}
		w = io.MultiWriter(w, rot)
	}
	if opts.Color {
		return slog.New(newColorTextHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// Default returns a stderr logger suitable before configuration is loaded.
func Default() *slog.Logger {
	return New(os.Stderr, Options{Level: "info", Color: IsTerminal(os.Stderr)})
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// IsTerminal reports whether f is attached to a terminal; colors are only
// emitted when it is.
func IsTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
