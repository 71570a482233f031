// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// Policy selects the protections applied to provider calls.
type Policy struct {
	Retry   RetryConfig
	Breaker CircuitBreakerConfig
}

// Enabled reports whether the policy changes anything.
func (p Policy) Enabled() bool {
	return p.Retry.MaxAttempts > 1 || p.Breaker.FailureThreshold > 0
}

// Transport wraps an llm.Transport with the policy. Each endpoint host gets
// its own circuit breaker. Throttled (429) and 5xx responses count as
// failures; once attempts run out the last response is returned as-is so
// the adapter can report the vendor's status and body.
type Transport struct {
	next   llm.Transport
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewTransport wraps next. A nil logger uses slog.Default.
func NewTransport(next llm.Transport, policy Policy, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		next:     next,
		policy:   policy,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

type statusError struct{ status int }

func (e *statusError) Error() string { return fmt.Sprintf("retryable status %d", e.status) }

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Post implements llm.Transport.
func (t *Transport) Post(ctx context.Context, endpoint string, headers map[string]string, body []byte) (int, []byte, error) {
	var (
		status int
		data   []byte
		tries  int
	)
	attempt := func() error {
		tries++
		var err error
		status, data, err = t.next.Post(ctx, endpoint, headers, body)
		if err != nil {
			return err
		}
		if retryableStatus(status) {
			return &statusError{status: status}
		}
		return nil
	}
	call := attempt
	if b := t.breaker(endpoint); b != nil {
		call = func() error { return b.Call(ctx, attempt) }
	}

	retry := t.policy.Retry
	inner := retry.IsRecoverable
	if inner == nil {
		inner = IsRecoverable
	}
	retry.IsRecoverable = func(err error) bool {
		var se *statusError
		return stderrors.As(err, &se) || inner(err)
	}

	err := retry.Do(ctx, call)
	if tries > 1 {
		t.logger.DebugContext(ctx, "provider.retry",
			slog.String("host", host(endpoint)),
			slog.Int("attempts", tries),
			slog.Int("status", status))
	}
	var se *statusError
	if stderrors.As(err, &se) {
		return status, data, nil
	}
	return status, data, err
}

func (t *Transport) breaker(endpoint string) *CircuitBreaker {
	if t.policy.Breaker.FailureThreshold <= 0 {
		return nil
	}
	key := host(endpoint)
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.breakers[key]
	if !ok {
		cfg := t.policy.Breaker
		cfg.Name = key
		b = NewCircuitBreaker(cfg)
		t.breakers[key] = b
	}
	return b
}

// BreakerState returns the breaker state for the host of endpoint, or
// StateClosed when no call has been made to it yet.
func (t *Transport) BreakerState(endpoint string) CircuitBreakerState {
	t.mu.Lock()
	b, ok := t.breakers[host(endpoint)]
	t.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

func host(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

var _ llm.Transport = (*Transport)(nil)
