// Package logging wraps slog for registrar processes. Account addresses and
// hashes passed as attribute values are shortened to 0x71C7…976F by the
// handlers built here.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Logger is a slog.Logger with registrar attribute helpers.
type Logger struct {
	base *slog.Logger
}

// SetupWriter builds a text or json logger writing to w and installs it as
// the slog default.
func SetupWriter(level, format string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level), ReplaceAttr: ReplaceAttr}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	base := slog.New(handler)
	slog.SetDefault(base)
	return &Logger{base: base}
}

// ParseLevel reads debug, info, warn or error in any case. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ReplaceAttr is a slog.HandlerOptions hook that shortens addresses and
// hashes.
func ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	switch v := a.Value.Any().(type) {
	case common.Address:
		return slog.String(a.Key, FormatAddress(v))
	case *common.Address:
		if v != nil {
			return slog.String(a.Key, FormatAddress(*v))
		}
	case common.Hash:
		return slog.String(a.Key, FormatHash(v))
	}
	return a
}

// New wraps base, or slog.Default when base is nil.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

// With returns a child logger carrying attrs.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) WithAddress(key string, addr common.Address) *Logger {
	return l.With(slog.Any(key, addr))
}

func (l *Logger) WithNode(node common.Hash) *Logger {
	return l.With(slog.Any("node", node))
}

func (l *Logger) WithLabel(label common.Hash) *Logger {
	return l.With(slog.Any("label", label))
}

func (l *Logger) WithReceipt(id string) *Logger {
	return l.With(slog.String("receipt", id))
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.With(slog.String("component", name))
}

func (l *Logger) WithError(err error) *Logger {
	return l.With(slog.String("error", err.Error()))
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.base.DebugContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.base.InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.base.WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.base.ErrorContext(ctx, msg, args...)
}

// Enabled reports whether level would be logged.
func (l *Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.base.Enabled(ctx, level)
}

// FormatAddress returns a shortened checksummed address, e.g. 0x71C7…976F.
func FormatAddress(addr common.Address) string {
	return shorten(addr.Hex())
}

// FormatHash returns a shortened 32-byte hash.
func FormatHash(h common.Hash) string {
	return shorten(h.Hex())
}

func shorten(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:6] + "…" + hex[len(hex)-4:]
}
