// Package logging picks the slog handler for the process: colorized tint
// output on terminals, JSON everywhere else.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Formats accepted by Options.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options selects the handler.
type Options struct {
	// Level is debug, info, warn or error; anything else is info
	Level string
	// Format is text or json. Empty picks text when out is a terminal.
	Format string
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// NewHandler returns the handler described by opts writing to out.
func NewHandler(out io.Writer, opts Options) slog.Handler {
	level := ParseLevel(opts.Level)
	if useText(out, opts.Format) {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})
	}
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
}

// Setup installs a logger writing to stdout as the slog default and returns it.
func Setup(opts Options) *slog.Logger {
	logger := slog.New(NewHandler(os.Stdout, opts))
	slog.SetDefault(logger)
	return logger
}

func useText(out io.Writer, format string) bool {
	switch strings.ToLower(format) {
	case FormatText:
		return true
	case FormatJSON:
		return false
	default:
		return isTerminal(out)
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
