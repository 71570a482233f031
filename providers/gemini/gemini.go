// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides the Google Gemini generateContent adapter.
package gemini

import (
	"encoding/json"

	"google.golang.org/genai"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// DefaultBaseURL is the public Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter implements llm.Adapter for generateContent.
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

// New creates a Gemini adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type request struct {
	Contents          []*genai.Content  `json:"contents"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// Endpoint implements llm.Adapter.
func (a *Adapter) Endpoint(opts llm.CallOptions) (llm.Endpoint, error) {
	model := a.modelFor(opts)
	if model == "" {
		return llm.Endpoint{}, llm.ConfigError("gemini", "a model")
	}
	if opts.APIKey == "" {
		return llm.Endpoint{}, llm.ConfigError("gemini", "an API key")
	}
	base := opts.BaseURL
	if base == "" {
		base = a.baseURL
	}
	return llm.Endpoint{
		URL:     llm.JoinURL(base, "models/"+model+":generateContent"),
		Headers: map[string]string{"x-goog-api-key": opts.APIKey},
	}, nil
}

// Payload implements llm.Adapter. System turns accumulate as parts of the
// system instruction; assistant and tool turns use the "model" role.
func (a *Adapter) Payload(history []llm.Message, opts llm.CallOptions) (any, error) {
	req := request{Contents: make([]*genai.Content, 0, len(history))}

	for _, msg := range history {
		switch msg.Role.Canonical() {
		case llm.RoleSystem:
			if req.SystemInstruction == nil {
				req.SystemInstruction = &genai.Content{}
			}
			req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, &genai.Part{Text: msg.Content})
		case llm.RoleAssistant, llm.RoleTool:
			req.Contents = append(req.Contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			req.Contents = append(req.Contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		req.GenerationConfig = &generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		}
	}
	return req, nil
}

// ExtractText implements llm.Adapter.
func (a *Adapter) ExtractText(body []byte) (string, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", llm.ShapeError("gemini", err.Error())
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", llm.ShapeError("gemini", "no text part in candidates")
}

func (a *Adapter) modelFor(opts llm.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return a.model
}

var _ llm.Adapter = (*Adapter)(nil)
