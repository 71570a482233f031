// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides the Anthropic Messages API adapter.
package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

const (
	// DefaultBaseURL is the public Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com"
	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"
	// DefaultMaxTokens is used when a call does not set MaxTokens.
	DefaultMaxTokens = 4096
)

// Adapter implements llm.Adapter for the Messages API.
type Adapter struct {
	baseURL   string
	model     string
	maxTokens int64
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithModel sets the model used when a call does not name one.
func WithModel(model string) Option {
	return func(a *Adapter) {
		a.model = model
	}
}

// WithMaxTokens sets the default completion budget.
func WithMaxTokens(tokens int64) Option {
	return func(a *Adapter) {
		a.maxTokens = tokens
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		a.baseURL = url
	}
}

// New creates an Anthropic adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Endpoint implements llm.Adapter.
func (a *Adapter) Endpoint(opts llm.CallOptions) (llm.Endpoint, error) {
	if a.modelFor(opts) == "" {
		return llm.Endpoint{}, llm.ConfigError("anthropic", "a model")
	}
	if opts.APIKey == "" {
		return llm.Endpoint{}, llm.ConfigError("anthropic", "an API key")
	}
	base := opts.BaseURL
	if base == "" {
		base = a.baseURL
	}
	return llm.Endpoint{
		URL: llm.JoinURL(base, "v1/messages"),
		Headers: map[string]string{
			"x-api-key":         opts.APIKey,
			"anthropic-version": APIVersion,
		},
	}, nil
}

// Payload implements llm.Adapter. System turns are joined by blank lines
// into the top-level system field; tool turns become assistant turns.
func (a *Adapter) Payload(history []llm.Message, opts llm.CallOptions) (any, error) {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(history))

	for _, msg := range history {
		switch msg.Role.Canonical() {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant, llm.RoleTool:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := a.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelFor(opts)),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: strings.Join(system, "\n\n")},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	return params, nil
}

// ExtractText implements llm.Adapter.
func (a *Adapter) ExtractText(body []byte) (string, error) {
	var message anthropic.Message
	if err := json.Unmarshal(body, &message); err != nil {
		return "", llm.ShapeError("anthropic", err.Error())
	}
	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", llm.ShapeError("anthropic", "no text content block")
}

func (a *Adapter) modelFor(opts llm.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.model
}

var _ llm.Adapter = (*Adapter)(nil)
