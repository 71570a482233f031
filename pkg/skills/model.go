// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// Extractor pulls argument values out of free text.
type Extractor interface {
	Extract(ctx context.Context, skill *Skill, pending []Argument, input string) (map[string]any, error)
}

// Classifier interprets a free-form reply to a confirmation summary.
type Classifier interface {
	Classify(ctx context.Context, skill *Skill, summary, reply string) (Decision, error)
}

// Reply actions returned by a Classifier.
const (
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionEdit    = "edit"
)

// Decision is a classified confirmation reply.
type Decision struct {
	Action  string         `json:"action"`
	Updates map[string]any `json:"updates,omitempty"`
}

// Model implements Extractor and Classifier with a language model.
type Model struct {
	Invoker  llm.Invoker
	Provider string
	Options  llm.CallOptions
}

var (
	_ Extractor  = (*Model)(nil)
	_ Classifier = (*Model)(nil)
)

// Extract implements Extractor.
func (m *Model) Extract(ctx context.Context, skill *Skill, pending []Argument, input string) (map[string]any, error) {
	schema, err := json.MarshalIndent(ArgumentSchema(pending), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render argument schema: %w", err)
	}
	names := make([]string, len(pending))
	for i, a := range pending {
		names[i] = a.Name
	}
	history := []llm.Message{
		llm.System("You extract argument values for the action \"" + skill.Name + "\" from user text. " +
			"Respond with a single JSON object whose keys are argument names. Omit arguments the text does not mention."),
		llm.User(fmt.Sprintf("Arguments still needed: %s\nArgument schema:\n%s\n\nUser text:\n%s",
			strings.Join(names, ", "), schema, input)),
	}
	reply, err := m.Invoker.Invoke(ctx, m.Provider, history, m.Options)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := llm.DecodeJSONReply(reply, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Classify implements Classifier.
func (m *Model) Classify(ctx context.Context, skill *Skill, summary, reply string) (Decision, error) {
	history := []llm.Message{
		llm.System("Classify the user's reply to a confirmation request. Respond with JSON " +
			`{"action":"confirm|cancel|edit","updates":{"<argument>":"<new value>"}}. ` +
			"Include updates only when the reply states new argument values. Known arguments: " +
			strings.Join(skill.ArgumentNames(), ", ") + "."),
		llm.User("Summary:\n" + summary + "\n\nReply:\n" + reply),
	}
	raw, err := m.Invoker.Invoke(ctx, m.Provider, history, m.Options)
	if err != nil {
		return Decision{}, err
	}
	var d Decision
	if err := llm.DecodeJSONReply(raw, &d); err != nil {
		return Decision{}, err
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	return d, nil
}
