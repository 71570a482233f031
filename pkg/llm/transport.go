// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// Transport posts a JSON body and returns the raw response.
type Transport interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (status int, respBody []byte, err error)
}

// HTTPTransport is the net/http backed Transport.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport with the given overall request timeout.
// A zero timeout defers entirely to the caller's context.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// Post sends body to url. Context cancellation surfaces as a CANCELLED error.
func (t *HTTPTransport) Post(ctx context.Context, url string, headers map[string]string, body []byte) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.New(errors.CodeConfiguration, "failed to create http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, errors.New(errors.CodeCancelled, "provider call cancelled", ctx.Err())
		}
		return 0, nil, errors.New(errors.CodeTransport, "provider call failed", err).
			WithContext("url", url).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, errors.New(errors.CodeCancelled, "provider call cancelled", ctx.Err())
		}
		return resp.StatusCode, nil, errors.New(errors.CodeTransport, "failed to read provider response", err)
	}
	return resp.StatusCode, data, nil
}

// AdapterHandler turns an Adapter plus a Transport into a Handler.
type AdapterHandler struct {
	name      string
	adapter   Adapter
	transport Transport
}

// NewAdapterHandler binds adapter to transport under the provider name used in errors.
func NewAdapterHandler(name string, adapter Adapter, transport Transport) *AdapterHandler {
	return &AdapterHandler{name: name, adapter: adapter, transport: transport}
}

// CallLLM resolves the endpoint, posts the payload and extracts the completion.
func (h *AdapterHandler) CallLLM(ctx context.Context, history []Message, opts CallOptions) (string, error) {
	ep, err := h.adapter.Endpoint(opts)
	if err != nil {
		return "", err
	}
	payload, err := h.adapter.Payload(history, opts)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.New(errors.CodeInternal, fmt.Sprintf("failed to marshal %s request", h.name), err)
	}

	status, respBody, err := h.transport.Post(ctx, ep.URL, ep.Headers, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", TransportError(h.name, status, respBody)
	}
	if err := VendorError(h.name, respBody); err != nil {
		return "", err
	}
	return h.adapter.ExtractText(respBody)
}

// TransportError builds the error for a non-2xx provider response.
func TransportError(provider string, status int, body []byte) error {
	return errors.New(errors.CodeTransport,
		fmt.Sprintf("%s returned status %d", provider, status), nil).
		WithContext("provider", provider).
		WithContext("status", status).
		WithContext("body", truncate(string(body), 2048)).
		WithRecoverable(status == http.StatusTooManyRequests || status >= 500)
}

// VendorError detects a 2xx body that carries an error object instead of a completion.
func VendorError(provider string, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil
	}
	raw := bytes.TrimSpace(envelope.Error)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "false" {
		return nil
	}
	return errors.New(errors.CodeVendor, fmt.Sprintf("%s reported an error", provider), nil).
		WithContext("provider", provider).
		WithContext("detail", vendorDetail(raw))
}

func vendorDetail(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// ShapeError builds the error for a 2xx response without usable text.
func ShapeError(provider, detail string) error {
	return errors.New(errors.CodeShape, fmt.Sprintf("%s response missing completion text", provider), nil).
		WithContext("provider", provider).
		WithContext("detail", detail)
}

// ConfigError builds the error for a call that cannot be attempted.
func ConfigError(provider, missing string) error {
	return errors.New(errors.CodeConfiguration,
		fmt.Sprintf("%s call requires %s", provider, missing), nil).
		WithContext("provider", provider)
}

// JoinURL concatenates a base URL and a path without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
