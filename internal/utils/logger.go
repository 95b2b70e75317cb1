package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Log output formats accepted by NewLogger.
const (
	LogFormatJSON    = "json"
	LogFormatText    = "text"
	LogFormatConsole = "console"
)

// NewLogger returns a slog.Logger configured for the desired verbosity and format.
func NewLogger(level, format string) *slog.Logger {
	return slog.New(NewLogHandler(os.Stdout, level, format))
}

// NewLogHandler builds the handler behind NewLogger. Console output is only
// colourised when w is a terminal.
func NewLogHandler(w io.Writer, level, format string) slog.Handler {
	handlerLevel := ParseLevel(level)

	switch strings.ToLower(format) {
	case LogFormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: handlerLevel})
	case LogFormatConsole:
		return tint.NewHandler(w, &tint.Options{
			Level:      handlerLevel,
			TimeFormat: "15:04:05.000",
			NoColor:    !isTerminal(w),
		})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: handlerLevel})
	}
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
