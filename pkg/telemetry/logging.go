// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel/trace"
)

// ConfigureSlog sets the global slog logger with trace-aware attributes.
// Formats: "text" (default), "json" and "console" (colored, human oriented).
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logger := slog.New(NewHandler(output, level, format))
	slog.SetDefault(logger)
	return logger
}

// NewHandler builds the trace-aware handler without touching the default logger.
func NewHandler(output io.Writer, level, format string) slog.Handler {
	lvl := parseLogLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	case "console":
		base = tint.NewHandler(output, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	default:
		base = slog.NewTextHandler(output, opts)
	}
	return &traceHandler{next: base}
}

type traceHandler struct {
	next slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, record slog.Record) error {
	traceID, spanID := spanIDsFromContext(ctx)
	if traceID != "" && !recordHasAttr(record, "trace_id") {
		record.AddAttrs(slog.String("trace_id", traceID))
	}
	if spanID != "" && !recordHasAttr(record, "span_id") {
		record.AddAttrs(slog.String("span_id", spanID))
	}
	return h.next.Handle(ctx, record)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func spanIDsFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

func recordHasAttr(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
