// Package logging builds the process logger from config.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatAuto = "auto"
)

// New returns a logger writing to w at level in format. Unknown levels fall
// back to warn. FormatAuto picks text when w is a terminal and JSON otherwise,
// so piped output (hooks, MCP) stays machine-readable.
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch resolveFormat(format, w) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps debug, info, warn and error (any case) to slog levels.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelWarn
	}
	return l
}

func resolveFormat(format string, w io.Writer) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case FormatJSON, FormatText:
		return f
	case FormatAuto:
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return FormatText
		}
		return FormatJSON
	}
	return FormatText
}
