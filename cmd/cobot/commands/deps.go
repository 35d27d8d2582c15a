// Package commands implements cobot's operator CLI subcommands.
package commands

import (
	"log/slog"
	"os"
)

// Deps carries what every subcommand needs from the root command without
// each one re-parsing persistent flags.
type Deps struct {
	ConfigPath *string
	Logger     func() *slog.Logger
}

// NewLogger builds the slog logger the root command's --log-level/--log-format
// flags select.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
