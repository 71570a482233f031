// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package operators

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/telemetry"
)

// DefaultThreshold is the minimum confidence when none is given.
const DefaultThreshold = 0.5

// Selection is one operator the model considers suitable.
type Selection struct {
	Name       string  `json:"operatorName"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of Choose.
type Result struct {
	SuitableOperators []Selection `json:"suitableOperators"`
}

// Selector asks a model which operators fit a task.
type Selector struct {
	registry *Registry
	invoker  llm.Invoker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithLogger sets the selector logger.
func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector creates a selector over registry.
func NewSelector(registry *Registry, invoker llm.Invoker, opts ...SelectorOption) *Selector {
	s := &Selector{
		registry: registry,
		invoker:  invoker,
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(telemetry.ScopeOperators),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Choose returns the operators whose model confidence is at least threshold,
// best first. With no operators registered it returns an empty result without
// calling the model. An unusable reply is a MALFORMED_REPLY error.
func (s *Selector) Choose(ctx context.Context, rec *agent.Record, description, mode string, threshold float64) (Result, error) {
	ops := s.registry.List()
	if len(ops) == 0 {
		return Result{SuitableOperators: []Selection{}}, nil
	}
	if rec == nil {
		return Result{}, errors.Validation("agent record is required")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	effective := agent.NormalizeTaskMode(mode, "", rec, agent.ModeFast)

	ctx, span := s.tracer.Start(ctx, "operators.Choose",
		trace.WithAttributes(telemetry.AgentAttributes(rec.Name, rec.Role, string(effective))...))
	defer span.End()

	reply, err := s.invoker.Invoke(ctx, rec.Provider, selectionPrompt(ops, description), rec.CallOptions(effective))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	var raw struct {
		SuitableOperators *[]Selection `json:"suitableOperators"`
	}
	err = llm.DecodeJSONReply(reply, &raw)
	if err == nil && raw.SuitableOperators == nil {
		err = fmt.Errorf("suitableOperators is missing")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unusable operator selection reply")
		return Result{}, errors.New(errors.CodeMalformedReply, "operator selection reply is unusable", err).
			WithContext("reply", reply)
	}

	known := make(map[string]bool, len(ops))
	for _, op := range ops {
		known[op.Name] = true
	}
	out := Result{SuitableOperators: []Selection{}}
	for _, sel := range *raw.SuitableOperators {
		if !known[sel.Name] {
			s.logger.DebugContext(ctx, "operators.choose.unknown",
				slog.String("operator", sel.Name))
			continue
		}
		if sel.Confidence >= threshold {
			out.SuitableOperators = append(out.SuitableOperators, sel)
		}
	}
	sort.SliceStable(out.SuitableOperators, func(i, j int) bool {
		return out.SuitableOperators[i].Confidence > out.SuitableOperators[j].Confidence
	})

	span.SetAttributes(telemetry.OperatorAttributes(len(ops), len(out.SuitableOperators), threshold)...)
	telemetry.Metrics().RecordOperatorSelection(ctx, len(out.SuitableOperators))
	return out, nil
}

func selectionPrompt(ops []Operator, description string) []llm.Message {
	var catalog strings.Builder
	for _, op := range ops {
		fmt.Fprintf(&catalog, "- %s: %s\n", op.Name, op.Description)
	}
	return []llm.Message{
		llm.System("You select operators for a task. Respond with strict JSON only, in the form " +
			`{"suitableOperators":[{"operatorName":"<name>","confidence":<0..1>}]}. ` +
			"List only operators from the catalog."),
		llm.User("Operators:\n" + catalog.String() + "\nTask:\n" + description),
	}
}
