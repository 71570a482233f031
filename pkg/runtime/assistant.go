// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/skills"
)

// assistant resolves its agent on every call so agents registered after
// the runtime was built are honored.
type assistant struct {
	rt        *Runtime
	agentName string
}

func (a *assistant) model() (*skills.Model, error) {
	rec, err := a.rt.agents.Get(a.agentName)
	if err != nil {
		return nil, err
	}
	return &skills.Model{
		Invoker:  a.rt.client,
		Provider: rec.Provider,
		Options:  rec.CallOptions(agent.ModeFast),
	}, nil
}

func (a *assistant) Extract(ctx context.Context, skill *skills.Skill, pending []skills.Argument, input string) (map[string]any, error) {
	m, err := a.model()
	if err != nil {
		return nil, err
	}
	return m.Extract(ctx, skill, pending, input)
}

func (a *assistant) Classify(ctx context.Context, skill *skills.Skill, summary, reply string) (skills.Decision, error) {
	m, err := a.model()
	if err != nil {
		return skills.Decision{}, err
	}
	return m.Classify(ctx, skill, summary, reply)
}
