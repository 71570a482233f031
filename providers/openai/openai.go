// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai provides the OpenAI chat completions adapter. Any
// OpenAI-compatible endpoint can be targeted with WithBaseURL.
package openai

import (
	"encoding/json"

	"github.com/openai/openai-go"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Adapter implements llm.Adapter for the chat completions API.
type Adapter struct {
	name    string
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

// WithBaseURL sets a custom base URL (for Azure OpenAI, gateways or compatible vendors).
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		a.baseURL = url
	}
}

// WithName sets the provider name reported in errors.
func WithName(name string) Option {
	return func(a *Adapter) {
		a.name = name
	}
}

// New creates an OpenAI adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{name: "openai", baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Endpoint implements llm.Adapter.
func (a *Adapter) Endpoint(opts llm.CallOptions) (llm.Endpoint, error) {
	if a.modelFor(opts) == "" {
		return llm.Endpoint{}, llm.ConfigError(a.name, "a model")
	}
	if opts.APIKey == "" {
		return llm.Endpoint{}, llm.ConfigError(a.name, "an API key")
	}
	base := opts.BaseURL
	if base == "" {
		base = a.baseURL
	}
	if base == "" {
		return llm.Endpoint{}, llm.ConfigError(a.name, "a base URL")
	}
	return llm.Endpoint{
		URL:     llm.JoinURL(base, "chat/completions"),
		Headers: map[string]string{"Authorization": "Bearer " + opts.APIKey},
	}, nil
}

// Payload implements llm.Adapter.
func (a *Adapter) Payload(history []llm.Message, opts llm.CallOptions) (any, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		messages = append(messages, convertMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:    a.modelFor(opts),
		Messages: messages,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params, nil
}

// ExtractText implements llm.Adapter.
func (a *Adapter) ExtractText(body []byte) (string, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", llm.ShapeError(a.name, err.Error())
	}
	if len(completion.Choices) == 0 {
		return "", llm.ShapeError(a.name, "no choices")
	}
	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", llm.ShapeError(a.name, "empty message content")
	}
	return content, nil
}

func (a *Adapter) modelFor(opts llm.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.model
}

// convertMessage maps a history entry to the OpenAI role vocabulary.
// Unrecognized roles become user turns.
func convertMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role.Canonical() {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	case llm.RoleTool:
		return openai.ToolMessage(msg.Content, "")
	default:
		return openai.UserMessage(msg.Content)
	}
}

var _ llm.Adapter = (*Adapter)(nil)
