// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// RuntimeMetrics tracks model calls, errors, skill runs and review outcomes.
type RuntimeMetrics struct {
	modelCalls     metric.Int64Counter
	modelDuration  metric.Float64Histogram
	errorCounter   metric.Int64Counter
	skillRuns      metric.Int64Counter
	reviewIters    metric.Int64Counter
	operatorPicks  metric.Int64Counter
	tasksProcessed metric.Int64Counter
}

var (
	defaultMetrics     *RuntimeMetrics
	defaultMetricsOnce sync.Once
)

// Metrics returns the process-wide metrics bound to the global meter provider.
// Instruments fall back to no-ops when creation fails.
func Metrics() *RuntimeMetrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewRuntimeMetrics()
		if err != nil {
			m = nil
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// NewRuntimeMetrics creates the instruments on the global meter provider.
func NewRuntimeMetrics() (*RuntimeMetrics, error) {
	meter := otel.Meter(ScopeRuntime)

	modelCalls, err := meter.Int64Counter(
		"ploinky.model.calls",
		metric.WithDescription("Model invocations by provider and outcome"),
	)
	if err != nil {
		return nil, err
	}
	modelDuration, err := meter.Float64Histogram(
		"ploinky.model.duration",
		metric.WithDescription("Model invocation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(
		"ploinky.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	skillRuns, err := meter.Int64Counter(
		"ploinky.skill.runs",
		metric.WithDescription("Skill executions by outcome"),
	)
	if err != nil {
		return nil, err
	}
	reviewIters, err := meter.Int64Counter(
		"ploinky.review.iterations",
		metric.WithDescription("Review iterations by verdict"),
	)
	if err != nil {
		return nil, err
	}
	operatorPicks, err := meter.Int64Counter(
		"ploinky.operator.selected",
		metric.WithDescription("Operators returned by selection"),
	)
	if err != nil {
		return nil, err
	}
	tasksProcessed, err := meter.Int64Counter(
		"ploinky.tasks.processed",
		metric.WithDescription("Queued tasks by final status"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		modelCalls:     modelCalls,
		modelDuration:  modelDuration,
		errorCounter:   errorCounter,
		skillRuns:      skillRuns,
		reviewIters:    reviewIters,
		operatorPicks:  operatorPicks,
		tasksProcessed: tasksProcessed,
	}, nil
}

// RecordModelCall records one model invocation and its latency.
func (m *RuntimeMetrics) RecordModelCall(ctx context.Context, provider string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(errors.CodeOf(err))
		if outcome == "" {
			outcome = "UNKNOWN"
		}
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrLLMProvider, provider),
		attribute.String("outcome", outcome),
	)
	m.modelCalls.Add(ctx, 1, attrs)
	m.modelDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordError increments the error counter for err's code and component.
func (m *RuntimeMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	if ae := errors.AsAgentError(err); ae != nil && errors.CodeOf(err) != "" {
		m.errorCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("error.code", string(ae.Code)),
				attribute.String("component", component),
				attribute.String("recoverable", ae.RecoverableString()),
			),
		)
		return
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", "UNKNOWN"),
			attribute.String("component", component),
			attribute.String("recoverable", "unknown"),
		),
	)
}

// RecordSkillRun records a finished skill execution.
func (m *RuntimeMetrics) RecordSkillRun(ctx context.Context, skill string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(errors.CodeOf(err))
		if outcome == "" {
			outcome = "UNKNOWN"
		}
	}
	m.skillRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrSkillName, skill),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordReviewIteration records a reviewer verdict.
func (m *RuntimeMetrics) RecordReviewIteration(ctx context.Context, approved bool) {
	if m == nil {
		return
	}
	m.reviewIters.Add(ctx, 1, metric.WithAttributes(attribute.Bool(AttrReviewApproved, approved)))
}

// RecordOperatorSelection records how many operators a selection returned.
func (m *RuntimeMetrics) RecordOperatorSelection(ctx context.Context, selected int) {
	if m == nil {
		return
	}
	m.operatorPicks.Add(ctx, int64(selected))
}

// RecordTask records a queued task reaching a final status.
func (m *RuntimeMetrics) RecordTask(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.tasksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTaskStatus, status)))
}
