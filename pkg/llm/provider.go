// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the chat history model, the provider adapter contract,
// the provider registry and the model invocation façade.
package llm

import (
	"context"
	"strings"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Canonical folds the role aliases accepted in chat histories
// (human, ai, function, observation) into the four canonical roles.
// Unrecognized roles return "" so each adapter can apply its own default.
func (r Role) Canonical() Role {
	switch strings.ToLower(strings.TrimSpace(string(r))) {
	case "system":
		return RoleSystem
	case "user", "human":
		return RoleUser
	case "assistant", "ai":
		return RoleAssistant
	case "tool", "function", "observation":
		return RoleTool
	default:
		return ""
	}
}

// Message is a single entry of a chat history. Order is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"message"`
}

// System, User and Assistant build history entries.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// CallOptions carries per-call model selection and credentials.
type CallOptions struct {
	Model       string
	APIKey      string
	BaseURL     string
	Mode        string
	Temperature float64
	MaxTokens   int
}

// Endpoint is where an adapter's payload is posted.
type Endpoint struct {
	URL     string
	Headers map[string]string
}

// Adapter translates between the internal chat history and one vendor's
// request and response shapes.
type Adapter interface {
	// Endpoint resolves the URL and headers for a call. It fails with a
	// configuration error before any network attempt when the model,
	// credentials or base URL are missing.
	Endpoint(opts CallOptions) (Endpoint, error)
	// Payload builds the JSON-serializable vendor request.
	Payload(history []Message, opts CallOptions) (any, error)
	// ExtractText returns the first textual completion of a 2xx response body.
	ExtractText(body []byte) (string, error)
}

// Handler performs a model call for a registered provider.
type Handler interface {
	CallLLM(ctx context.Context, history []Message, opts CallOptions) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, history []Message, opts CallOptions) (string, error)

// CallLLM calls f.
func (f HandlerFunc) CallLLM(ctx context.Context, history []Message, opts CallOptions) (string, error) {
	return f(ctx, history, opts)
}

// Invoker is the narrow façade consumed by the skill, operator and review layers.
type Invoker interface {
	Invoke(ctx context.Context, providerKey string, history []Message, opts CallOptions) (string, error)
}
