package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/carebot/pkg/redact"
)

// New creates a configured application logger.
// It writes to Stderr (to separate from Stdout chat/JSON-RPC traffic).
// It standardizes common keys (e.g., "error" -> "err") and masks national
// identifiers wherever they appear in attribute values.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, Options(level)))
}

// NewJSON is New with JSON output, used by the HTTP server.
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, Options(level)))
}

// Options returns the handler options shared by every logger.
func Options(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	if redact.IsSensitiveKey(a.Key) || redact.IsFreeTextKey(a.Key) {
		return slog.String(a.Key, redact.Value(a.Key, a.Value.Resolve().Any()))
	}
	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(redact.Text(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			a.Value = slog.StringValue(redact.Text(err.Error()))
		}
	}
	return a
}

// ParseLevel maps a config string to a level, defaulting to info.
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

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
