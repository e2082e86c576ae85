// Package logging builds the process logger and scrubs sensitive values
// out of log text.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	Level  string
	Format string

	// Sanitize passes every string attribute and the message through
	// Sanitize before it is written.
	Sanitize bool
}

// ParseLevel maps a level name to a slog.Level. Unknown names are an error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	hopts := &slog.HandlerOptions{Level: level}
	if opts.Sanitize {
		hopts.ReplaceAttr = sanitizeAttr
	}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		h = slog.NewTextHandler(w, hopts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(h), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ErrorAttrs returns sanitized attributes describing err. Errors exposing
// Code, ExitCode, Command or Stderr methods contribute those fields.
func ErrorAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("error", Sanitize(err.Error()))}

	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) && coded.ErrorCode() != "" {
		attrs = append(attrs, slog.String("code", coded.ErrorCode()))
	}
	var exited interface{ ExitStatus() int }
	if errors.As(err, &exited) && exited.ExitStatus() != 0 {
		attrs = append(attrs, slog.Int("exit_code", exited.ExitStatus()))
	}
	var commanded interface{ CommandName() string }
	if errors.As(err, &commanded) && commanded.CommandName() != "" {
		attrs = append(attrs, slog.String("command", Sanitize(commanded.CommandName())))
	}
	return attrs
}

// Err is shorthand for slog.Group("err", ErrorAttrs(err)...) flattened to
// a single "error" attribute when err carries no extra fields.
func Err(err error) slog.Attr {
	attrs := ErrorAttrs(err)
	switch len(attrs) {
	case 0:
		return slog.String("error", "")
	case 1:
		return attrs[0]
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return slog.Group("err", args...)
}

func sanitizeAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		// Level and time keys are produced by the handler itself.
		if a.Key == slog.LevelKey || a.Key == slog.TimeKey {
			return a
		}
		return slog.String(a.Key, Sanitize(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Sanitize(err.Error()))
		}
	}
	return a
}
