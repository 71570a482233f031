// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skutner/ploinky-sub003/pkg/telemetry"
)

// Client is the model invocation façade over a Registry.
type Client struct {
	registry *Registry
	tracer   trace.Tracer
	logger   *slog.Logger
	metrics  *telemetry.RuntimeMetrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for call diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer overrides the tracer (defaults to the global provider).
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// NewClient returns a façade dispatching to the providers in registry.
func NewClient(registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		tracer:   telemetry.Tracer(telemetry.ScopeLLM),
		logger:   slog.Default(),
		metrics:  telemetry.Metrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the underlying provider registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Invoke runs one model call against the provider registered under providerKey.
func (c *Client) Invoke(ctx context.Context, providerKey string, history []Message, opts CallOptions) (string, error) {
	rec, err := c.registry.Ensure(providerKey)
	if err != nil {
		return "", err
	}

	ctx, span := c.tracer.Start(ctx, "llm.Invoke",
		trace.WithAttributes(telemetry.LLMAttributes(rec.Key, opts.Model, len(history))...))
	defer span.End()

	start := time.Now()
	text, err := rec.Handler.CallLLM(ctx, history, opts)
	elapsed := time.Since(start)
	c.metrics.RecordModelCall(ctx, rec.Key, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordError(ctx, err, "llm")
		c.logger.WarnContext(ctx, "model call failed",
			slog.String("provider", rec.Key),
			slog.String("model", opts.Model),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	c.logger.DebugContext(ctx, "model call completed",
		slog.String("provider", rec.Key),
		slog.String("model", opts.Model),
		slog.Int("messages", len(history)),
		slog.Duration("elapsed", elapsed),
	)
	return text, nil
}

var _ Invoker = (*Client)(nil)
