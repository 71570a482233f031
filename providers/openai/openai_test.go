// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
)

func payloadRoles(t *testing.T, payload any) []string {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	roles := make([]string, 0, len(body.Messages))
	for _, m := range body.Messages {
		roles = append(roles, m.Role)
	}
	return roles
}

func TestPayloadRoleMapping(t *testing.T) {
	history := []llm.Message{
		{Role: "system", Content: "be terse"},
		{Role: "human", Content: "hi"},
		{Role: "ai", Content: "hello"},
		{Role: "observation", Content: "42"},
		{Role: "narrator", Content: "??"},
	}
	payload, err := New().Payload(history, llm.CallOptions{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	got := payloadRoles(t, payload)
	want := []string{"system", "user", "assistant", "tool", "user"}
	if len(got) != len(want) {
		t.Fatalf("roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roles = %v, want %v", got, want)
		}
	}
}

func TestEndpointConfiguration(t *testing.T) {
	a := New()
	if _, err := a.Endpoint(llm.CallOptions{APIKey: "k"}); !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error for missing model, got %v", err)
	}
	if _, err := a.Endpoint(llm.CallOptions{Model: "m"}); !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error for missing key, got %v", err)
	}
	ep, err := New(WithModel("m")).Endpoint(llm.CallOptions{APIKey: "k"})
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if ep.URL != DefaultBaseURL+"/chat/completions" || ep.Headers["Authorization"] != "Bearer k" {
		t.Fatalf("unexpected endpoint %+v", ep)
	}
}

func TestExtractText(t *testing.T) {
	a := New()
	got, err := a.ExtractText([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`))
	if err != nil || got != "pong" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := a.ExtractText([]byte(`{"choices":[]}`)); !errors.Is(err, errors.CodeShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer auth")
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		if req["model"] != "gpt-4o-mini" {
			t.Errorf("unexpected model in %s", body)
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer srv.Close()

	h := llm.NewAdapterHandler("openai", New(), llm.NewHTTPTransport(5*time.Second))
	got, err := h.CallLLM(context.Background(), []llm.Message{llm.User("go")}, llm.CallOptions{
		Model:   "gpt-4o-mini",
		APIKey:  "secret",
		BaseURL: srv.URL + "/v1",
	})
	if err != nil || got != "done" {
		t.Fatalf("got %q, %v", got, err)
	}
}
