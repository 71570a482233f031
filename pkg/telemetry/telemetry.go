// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scopes, one per component that emits spans or metrics.
const (
	ScopeLLM       = "ploinky/llm"
	ScopeSkills    = "ploinky/skills"
	ScopeOperators = "ploinky/operators"
	ScopeReview    = "ploinky/review"
	ScopeRuntime   = "ploinky/runtime"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Namespace is the service.namespace of every ploinky process.
const Namespace = "ploinky"

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Config selects where spans and metrics go.
type Config struct {
	Exporter           string
	OTLPEndpoint       string
	OTLPInsecure       bool
	OTLPTimeoutSeconds int
	// OTLPHeaders are sent with every export request.
	OTLPHeaders map[string]string
	// Environment is reported as deployment.environment, usually the
	// configuration profile.
	Environment string
	// Providers lists the registered model provider keys.
	Providers []string
}

// Tracer returns the tracer of a component scope.
func Tracer(scope string) trace.Tracer {
	return otel.Tracer(scope)
}

// Init installs stdout exporters.
func Init(serviceName, version string) (ShutdownFunc, error) {
	return InitWithConfig(serviceName, version, Config{Exporter: ExporterStdout})
}

// InitWithConfig installs the exporters named by cfg as the global tracer
// and meter providers. ExporterNone keeps the global no-op providers.
func InitWithConfig(serviceName, version string, cfg Config) (ShutdownFunc, error) {
	if cfg.Exporter == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}
	spans, metrics, err := newExporters(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), serviceResource(serviceName, version, cfg))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(time.Minute))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return stderrors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// serviceResource describes the process: service identity, namespace,
// environment and the model providers it can reach.
func serviceResource(serviceName, version string, cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
		semconv.ServiceNamespace(Namespace),
		attribute.String("ploinky.exporter", exporterName(cfg.Exporter)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	if len(cfg.Providers) > 0 {
		attrs = append(attrs, attribute.StringSlice("ploinky.providers", cfg.Providers))
	}
	return resource.NewSchemaless(attrs...)
}

func exporterName(name string) string {
	if name == "" {
		return ExporterStdout
	}
	return name
}

func newExporters(ctx context.Context, cfg Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch exporterName(cfg.Exporter) {
	case ExporterStdout:
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("stdout span exporter: %w", err)
		}
		metrics, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return spans, metrics, nil
	case ExporterOTLP:
		return newOTLPExporters(ctx, cfg)
	default:
		return nil, nil, fmt.Errorf("unknown telemetry exporter: %s", cfg.Exporter)
	}
}

func newOTLPExporters(ctx context.Context, cfg Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	if cfg.OTLPEndpoint == "" {
		return nil, nil, fmt.Errorf("otlp endpoint is required")
	}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPTimeoutSeconds > 0 {
		timeout := time.Duration(cfg.OTLPTimeoutSeconds) * time.Second
		traceOpts = append(traceOpts, otlptracegrpc.WithTimeout(timeout))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTimeout(timeout))
	}
	if len(cfg.OTLPHeaders) > 0 {
		traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
	}
	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otlp span exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	return spans, metrics, nil
}
