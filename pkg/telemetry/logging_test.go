// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestJSONHandlerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "debug", "json"))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "hello", "skill", "parse-json")
	span.End()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("expected trace_id, got %v", entry["trace_id"])
	}
	if entry["span_id"] == nil {
		t.Fatal("expected span_id")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "warn", "text"))
	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "info", "console"))
	logger.Info("console line", "provider", "ollama")
	if !strings.Contains(buf.String(), "console line") {
		t.Fatalf("expected message in console output, got %q", buf.String())
	}
}
