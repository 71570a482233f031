// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package qwen provides the Alibaba Cloud Qwen adapter. DashScope exposes an
// OpenAI-compatible API, so the OpenAI adapter is reused with its base URL.
package qwen

import (
	"github.com/skutner/ploinky-sub003/providers/openai"
)

// DefaultBaseURL is the default DashScope compatible-mode endpoint.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// New creates a Qwen adapter. Extra options override the defaults.
func New(opts ...openai.Option) *openai.Adapter {
	base := []openai.Option{
		openai.WithName("qwen"),
		openai.WithBaseURL(DefaultBaseURL),
	}
	return openai.New(append(base, opts...)...)
}
