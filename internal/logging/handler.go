// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package logging builds the process slog.Logger: JSON or text output,
// secret redaction, and OpenTelemetry trace correlation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Options configures the process logger.
type Options struct {
	Service string
	Version string
	// Format is "json" or "text"; empty means json.
	Format string
	// Level is "debug", "info", "warn" or "error"; empty means info.
	Level string
}

// Redacted replaces the value of any secret-bearing attribute.
const Redacted = "[REDACTED]"

// secretKeys match exactly. Any key ending in "_token" or "password" is
// also treated as secret.
var secretKeys = map[string]struct{}{
	"token":         {},
	"otp":           {},
	"otp_code":      {},
	"secret":        {},
	"totp_secret":   {},
	"authorization": {},
	"cookie":        {},
	"signature":     {},
}

func isSecret(key string) bool {
	k := strings.ToLower(key)
	if _, ok := secretKeys[k]; ok {
		return true
	}
	return strings.HasSuffix(k, "_token") || strings.HasSuffix(k, "password")
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if isSecret(a.Key) {
		a.Value = slog.StringValue(Redacted)
	}
	return a
}

// spanHandler stamps trace_id and span_id from the record's context.
type spanHandler struct {
	slog.Handler
}

func (h spanHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r) //nolint:wrapcheck // slog passthrough
}

func (h spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanHandler{h.Handler.WithAttrs(attrs)}
}

func (h spanHandler) WithGroup(name string) slog.Handler {
	return spanHandler{h.Handler.WithGroup(name)}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	var lv slog.Level
	name := strings.TrimSpace(level)
	if strings.EqualFold(name, "warning") {
		name = "warn"
	}
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := lv.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, oops.Code("CONFIG_INVALID").
			With("level", level).
			Errorf("unknown log level %q", level)
	}
	return lv, nil
}

// Setup builds a logger writing to w, or stderr when w is nil. An unknown
// level falls back to info; config validation rejects it earlier.
func Setup(opts Options, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, _ := ParseLevel(opts.Level) //nolint:errcheck // info on error
	ho := &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr}

	var base slog.Handler = slog.NewJSONHandler(w, ho)
	if strings.EqualFold(opts.Format, "text") {
		base = slog.NewTextHandler(w, ho)
	}
	base = base.WithAttrs([]slog.Attr{
		slog.String("service", opts.Service),
		slog.String("version", opts.Version),
	})
	return slog.New(spanHandler{base})
}

// SetDefault builds the logger with Setup, installs it as slog's default
// and returns it.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts, nil)
	slog.SetDefault(logger)
	return logger
}
