// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/prompt"
	"github.com/skutner/ploinky-sub003/pkg/telemetry"
)

// UseOptions tunes a single skill invocation.
type UseOptions struct {
	// TaskDescription is scanned once for argument values before prompting.
	TaskDescription string
	// SkipConfirmation runs the action as soon as arguments are complete.
	SkipConfirmation bool
}

// Engine resolves arguments, confirms and executes registered skills.
type Engine struct {
	registry   *Registry
	prompter   prompt.Prompter
	extractor  Extractor
	classifier Classifier
	threshold  float64
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *telemetry.RuntimeMetrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPrompter sets where user input is read from.
func WithPrompter(p prompt.Prompter) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.prompter = p
		}
	}
}

// WithArgumentExtractor enables model-assisted argument extraction.
func WithArgumentExtractor(x Extractor) EngineOption {
	return func(e *Engine) { e.extractor = x }
}

// WithReplyClassifier enables model classification of confirmation replies.
func WithReplyClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithThreshold overrides the fuzzy option threshold.
func WithThreshold(t float64) EngineOption {
	return func(e *Engine) {
		if t > 0 {
			e.threshold = t
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine creates an engine over registry. Input defaults to the console.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:  registry,
		prompter:  prompt.NewConsole(),
		threshold: DefaultOptionThreshold,
		logger:    slog.Default(),
		tracer:    telemetry.Tracer(telemetry.ScopeSkills),
		metrics:   telemetry.Metrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Use runs the named skill. Arguments in partial are validated first; the
// rest are collected interactively and confirmed unless the skill or opts
// say otherwise.
func (e *Engine) Use(ctx context.Context, name string, partial map[string]any, opts UseOptions) (any, error) {
	skill, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "skills.Use",
		trace.WithAttributes(telemetry.SkillAttributes(skill.Name, "resolve", len(partial))...))
	defer span.End()

	result, err := e.use(ctx, skill, partial, opts)
	e.metrics.RecordSkillRun(ctx, skill.Name, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, errors.CodeUserCancelled) {
			e.metrics.RecordError(ctx, err, "skills")
		}
		e.logger.InfoContext(ctx, "skill.use.failed",
			slog.String("skill", skill.Name),
			slog.String("error", err.Error()))
		return nil, err
	}
	return result, nil
}

func (e *Engine) use(ctx context.Context, skill *Skill, partial map[string]any, opts UseOptions) (any, error) {
	ec := NewExecutionContext(skill)
	ec.TaskDescription = opts.TaskDescription

	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := skill.Argument(k); !ok {
			e.logger.WarnContext(ctx, "skill.use.unknown_argument",
				slog.String("skill", skill.Name),
				slog.String("argument", k))
			continue
		}
		if partial[k] == nil {
			continue
		}
		if err := ec.Set(k, partial[k]); err != nil {
			return nil, err
		}
	}
	ApplyDescriptionDefaults(ec)
	PrefillFromTask(ec, opts.TaskDescription)

	collector := NewCollector(ec,
		WithExtractor(e.extractor),
		WithOptionThreshold(e.threshold),
		WithCollectorLogger(e.logger))
	confirmer := NewConfirmer(ec,
		WithClassifier(e.classifier),
		WithConfirmerLogger(e.logger))

	for {
		if err := collector.Run(ctx, e.prompter); err != nil {
			return nil, err
		}
		if opts.SkipConfirmation || !skill.NeedConfirmation {
			break
		}
		state, err := confirmer.Run(ctx, e.prompter)
		if err != nil {
			return nil, err
		}
		if state == Confirmed {
			break
		}
		collector.Reopen()
	}

	trace.SpanFromContext(ctx).SetAttributes(telemetry.SkillAttributes(skill.Name, "execute", len(ec.Args))...)
	return skill.Action(ctx, ec.Snapshot())
}
