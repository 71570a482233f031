// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
)

type wirePayload struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

func TestPayloadJoinsSystemAndMapsRoles(t *testing.T) {
	history := []llm.Message{
		{Role: "system", Content: "rule one"},
		{Role: "user", Content: "q"},
		{Role: "system", Content: "rule two"},
		{Role: "tool", Content: "tool output"},
		{Role: "mystery", Content: "x"},
	}
	payload, err := New().Payload(history, llm.CallOptions{Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	data, _ := json.Marshal(payload)
	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.MaxTokens != DefaultMaxTokens {
		t.Fatalf("max tokens = %d", p.MaxTokens)
	}
	if len(p.System) != 1 || p.System[0].Text != "rule one\n\nrule two" {
		t.Fatalf("unexpected system %+v", p.System)
	}
	want := []string{"user", "assistant", "user"}
	if len(p.Messages) != len(want) {
		t.Fatalf("messages = %+v", p.Messages)
	}
	for i, m := range p.Messages {
		if m.Role != want[i] {
			t.Fatalf("message %d role = %s, want %s", i, m.Role, want[i])
		}
	}
}

func TestEndpointHeaders(t *testing.T) {
	ep, err := New().Endpoint(llm.CallOptions{Model: "m", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if ep.Headers["x-api-key"] != "k" || ep.Headers["anthropic-version"] != APIVersion {
		t.Fatalf("unexpected headers %v", ep.Headers)
	}
	if _, err := New().Endpoint(llm.CallOptions{Model: "m"}); !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestVendorErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	h := llm.NewAdapterHandler("anthropic", New(), llm.NewHTTPTransport(5*time.Second))
	_, err := h.CallLLM(context.Background(), []llm.Message{llm.User("x")}, llm.CallOptions{Model: "m", APIKey: "k", BaseURL: srv.URL})
	if !errors.Is(err, errors.CodeVendor) {
		t.Fatalf("expected vendor error, got %v", err)
	}
	if errors.AsAgentError(err).Context["detail"] != "Overloaded" {
		t.Fatalf("expected vendor detail, got %v", errors.AsAgentError(err).Context)
	}
}

func TestExtractText(t *testing.T) {
	body := `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"hi there"}],"model":"m","stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`
	got, err := New().ExtractText([]byte(body))
	if err != nil || got != "hi there" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := New().ExtractText([]byte(`{"content":[]}`)); !errors.Is(err, errors.CodeShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
}
