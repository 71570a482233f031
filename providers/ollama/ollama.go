// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package ollama provides the adapter for a local Ollama server.
package ollama

import (
	"encoding/json"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// DefaultBaseURL is where a local Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

// Adapter implements llm.Adapter for /api/chat. No API key is needed.
type Adapter struct {
	baseURL string
	model   string
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithModel sets the model used when a call does not name one.
func WithModel(model string) Option {
	return func(a *Adapter) {
		a.model = model
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		a.baseURL = url
	}
}

// New creates an Ollama adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

// Endpoint implements llm.Adapter.
func (a *Adapter) Endpoint(opts llm.CallOptions) (llm.Endpoint, error) {
	if a.modelFor(opts) == "" {
		return llm.Endpoint{}, llm.ConfigError("ollama", "a model")
	}
	base := opts.BaseURL
	if base == "" {
		base = a.baseURL
	}
	if base == "" {
		return llm.Endpoint{}, llm.ConfigError("ollama", "a base URL")
	}
	return llm.Endpoint{URL: llm.JoinURL(base, "api/chat")}, nil
}

// Payload implements llm.Adapter.
func (a *Adapter) Payload(history []llm.Message, opts llm.CallOptions) (any, error) {
	req := ollamaRequest{
		Model:    a.modelFor(opts),
		Messages: make([]message, 0, len(history)),
	}
	for _, msg := range history {
		role := msg.Role.Canonical()
		if role == "" {
			role = llm.RoleUser
		}
		req.Messages = append(req.Messages, message{Role: string(role), Content: msg.Content})
	}
	options := map[string]any{}
	if opts.Temperature != 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req, nil
}

// ExtractText implements llm.Adapter.
func (a *Adapter) ExtractText(body []byte) (string, error) {
	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", llm.ShapeError("ollama", err.Error())
	}
	if resp.Message.Content == "" {
		return "", llm.ShapeError("ollama", "empty message content")
	}
	return resp.Message.Content, nil
}

func (a *Adapter) modelFor(opts llm.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.model
}

var _ llm.Adapter = (*Adapter)(nil)
