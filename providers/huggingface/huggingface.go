// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package huggingface provides a completion-style adapter for text
// generation endpoints that take a single prompt string.
package huggingface

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// DefaultBaseURL is the hosted inference API root; the model id is appended.
const DefaultBaseURL = "https://api-inference.huggingface.co/models"

// Adapter implements llm.Adapter by rendering the history as a transcript.
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

// New creates a text-generation adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	ReturnFullText bool    `json:"return_full_text"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Endpoint implements llm.Adapter.
func (a *Adapter) Endpoint(opts llm.CallOptions) (llm.Endpoint, error) {
	model := a.modelFor(opts)
	if model == "" {
		return llm.Endpoint{}, llm.ConfigError("huggingface", "a model")
	}
	if opts.APIKey == "" {
		return llm.Endpoint{}, llm.ConfigError("huggingface", "an API key")
	}
	base := opts.BaseURL
	if base == "" {
		base = a.baseURL
	}
	return llm.Endpoint{
		URL:     llm.JoinURL(base, model),
		Headers: map[string]string{"Authorization": "Bearer " + opts.APIKey},
	}, nil
}

// Payload implements llm.Adapter.
func (a *Adapter) Payload(history []llm.Message, opts llm.CallOptions) (any, error) {
	return request{
		Inputs: Transcript(history),
		Parameters: parameters{
			Temperature:  opts.Temperature,
			MaxNewTokens: opts.MaxTokens,
		},
	}, nil
}

// Transcript renders history as "Role: text" lines and ends with an open
// "Assistant: " turn. Tool output and unrecognized roles are folded into
// the assistant narrative.
func Transcript(history []llm.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role.Canonical() {
		case llm.RoleSystem:
			b.WriteString("System: ")
		case llm.RoleUser:
			b.WriteString("User: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant: ")
	return b.String()
}

// ExtractText implements llm.Adapter. Both the list and the single-object
// response shapes are accepted.
func (a *Adapter) ExtractText(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	var text string
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []generation
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return "", llm.ShapeError("huggingface", err.Error())
		}
		if len(out) > 0 {
			text = out[0].GeneratedText
		}
	} else {
		var out generation
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return "", llm.ShapeError("huggingface", err.Error())
		}
		text = out.GeneratedText
	}
	if text == "" {
		return "", llm.ShapeError("huggingface", "no generated_text")
	}
	return strings.TrimSpace(text), nil
}

func (a *Adapter) modelFor(opts llm.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.model
}

var _ llm.Adapter = (*Adapter)(nil)
