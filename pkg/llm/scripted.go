// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedHandler returns a pre-defined sequence of replies and records every
// history it receives. Useful for testing multi-step flows.
type ScriptedHandler struct {
	mu        sync.Mutex
	responses []string
	// Err, when set, is returned by every call.
	Err error
	// Respond, when set, computes the reply instead of the script.
	Respond func(history []Message, opts CallOptions) (string, error)
	calls   []Call
}

// Call is one recorded invocation.
type Call struct {
	History []Message
	Options CallOptions
}

// NewScriptedHandler creates a handler replaying responses in order.
func NewScriptedHandler(responses ...string) *ScriptedHandler {
	return &ScriptedHandler{responses: responses}
}

// CallLLM pops the next scripted reply.
func (s *ScriptedHandler) CallLLM(ctx context.Context, history []Message, opts CallOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{History: append([]Message(nil), history...), Options: opts})

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Respond != nil {
		return s.Respond(history, opts)
	}
	if len(s.responses) == 0 {
		return "", errors.New("scripted handler: no more responses available")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

// AddResponse appends a reply to the script.
func (s *ScriptedHandler) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response)
}

// Calls returns a copy of the recorded invocations.
func (s *ScriptedHandler) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times CallLLM ran.
func (s *ScriptedHandler) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Remaining returns how many scripted replies are left.
func (s *ScriptedHandler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}
