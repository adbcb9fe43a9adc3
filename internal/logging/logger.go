package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/rendis/nexus/pkg/schema"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, schema.NewErrorf(schema.ErrCodeValidation, "invalid log level %q", s).WithCause(err)
	}
	return lvl, nil
}

// New builds the application logger writing to w. Records carry correlation
// IDs from the context and the "error" key is shortened to "err".
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", FormatText:
		h = slog.NewTextHandler(w, opts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid log format %q", format)
	}
	return slog.New(NewCorrelationHandler(h)), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
