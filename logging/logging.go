// Package logging builds the slog loggers used by the sidecarctl commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	// Level is the minimum level. Verbose forces debug.
	Level   slog.Level
	Format  Format
	Verbose bool
}

// New creates a structured logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := opts.Level
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// NewWithFile creates a logger that writes to both w and a timestamped log
// file under dir, so runs can be revisited later. It returns the logger, the
// log file path and a cleanup function closing the file. When the file
// cannot be created it falls back to w alone with an empty path.
func NewWithFile(w io.Writer, dir string, opts Options) (*slog.Logger, string, func()) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return New(w, opts), "", func() {}
	}
	logFile := filepath.Join(dir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return New(w, opts), "", func() {}
	}
	return New(io.MultiWriter(w, f), opts), logFile, func() { f.Close() }
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel parses debug, info, warn or error (case-insensitive). An empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat parses text or json. An empty string is text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown log format %q", s)
}
