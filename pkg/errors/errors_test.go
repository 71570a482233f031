// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection reset")
	ae := New(CodeTransport, "provider call failed", cause)

	if ae.Code != CodeTransport {
		t.Errorf("expected CodeTransport, got %v", ae.Code)
	}
	if ae.Message != "provider call failed" {
		t.Errorf("expected message 'provider call failed', got %q", ae.Message)
	}
	if !errors.Is(ae, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	ae := New(CodeTransport, "bad status", nil)
	ae.WithContext("status", 503).
		WithContext("body", "upstream unavailable")

	if ae.Context["status"] != 503 {
		t.Errorf("expected status context to be 503")
	}
	if ae.Context["body"] != "upstream unavailable" {
		t.Errorf("expected body context")
	}
}

func TestWithRecoverable(t *testing.T) {
	ae := New(CodeTransport, "network error", nil)
	if ae.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}
	ae.WithRecoverable(true)
	if ae.RecoverableString() != "true" {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		ae       *AgentError
		expected string
	}{
		{
			name:     "with cause",
			ae:       New(CodeTimeout, "operation timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] operation timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			ae:       NotFound("skill", "parse-json"),
			expected: `[NOT_FOUND] skill "parse-json" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ae.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := UserCancelled("confirmation")
	wrapped := fmt.Errorf("use skill: %w", inner)

	if CodeOf(wrapped) != CodeUserCancelled {
		t.Fatalf("expected USER_CANCELLED through wrapping, got %q", CodeOf(wrapped))
	}
	if !Is(wrapped, CodeUserCancelled) {
		t.Fatalf("expected Is to match")
	}
	if Is(nil, CodeUserCancelled) {
		t.Fatalf("nil must not match any code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestAsAgentError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "already AgentError", err: Validation("bad %s", "value"), expected: CodeInvalidInput},
		{name: "wrapped AgentError", err: fmt.Errorf("ctx: %w", New(CodeShape, "x", nil)), expected: CodeShape},
		{name: "generic error", err: errors.New("generic error"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae := AsAgentError(tt.err)
			if tt.expected == "" {
				if ae != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if ae == nil {
				t.Fatalf("expected non-nil AgentError")
			}
			if ae.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, ae.Code)
			}
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	ae := New(CodeVendor, "vendor reported an error", errors.New("overloaded"))
	ae.WithContext("provider", "anthropic").WithRecoverable(true)

	data, err := json.Marshal(ae)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}
	if result["code"] != "VENDOR_ERROR" {
		t.Errorf("expected code 'VENDOR_ERROR', got %v", result["code"])
	}
	if result["error"] != "overloaded" {
		t.Errorf("expected cause text, got %v", result["error"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeConfiguration, 400},
		{CodePolicyDenied, 403},
		{CodeTimeout, 408},
		{CodeUserCancelled, 499},
		{CodeTransport, 502},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test", nil).StatusCode; got != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, got)
			}
		})
	}
}
