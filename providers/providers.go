// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package providers registers the built-in vendor adapters.
package providers

import (
	"sort"

	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/providers/anthropic"
	"github.com/skutner/ploinky-sub003/providers/gemini"
	"github.com/skutner/ploinky-sub003/providers/huggingface"
	"github.com/skutner/ploinky-sub003/providers/ollama"
	"github.com/skutner/ploinky-sub003/providers/openai"
	"github.com/skutner/ploinky-sub003/providers/qwen"
)

// Adapters returns a fresh adapter for every built-in provider key.
func Adapters() map[string]llm.Adapter {
	return map[string]llm.Adapter{
		"openai":      openai.New(),
		"anthropic":   anthropic.New(),
		"gemini":      gemini.New(),
		"huggingface": huggingface.New(),
		"ollama":      ollama.New(),
		"qwen":        qwen.New(),
	}
}

// RegisterDefaults registers every built-in adapter on reg, bound to transport.
func RegisterDefaults(reg *llm.Registry, transport llm.Transport) error {
	adapters := Adapters()
	keys := make([]string, 0, len(adapters))
	for k := range adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := llm.Record{
			Key:      key,
			Handler:  llm.NewAdapterHandler(key, adapters[key], transport),
			Metadata: map[string]any{"builtin": true},
		}
		if err := reg.Register(rec); err != nil {
			return err
		}
	}
	return nil
}
