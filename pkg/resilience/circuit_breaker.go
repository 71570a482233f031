// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed lets calls through.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen rejects calls until the cooldown passes.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen lets trial calls through to test recovery.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Zero disables circuit breaking in a Policy.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// Name identifies the breaker in errors and logs.
	Name string
}

// CircuitBreaker stops calling a failing endpoint for a while.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	state        CircuitBreakerState
	failures     int
	successes    int
	lastFailTime time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	return &CircuitBreaker{config: config, state: StateClosed, now: time.Now}
}

// Call runs fn unless the circuit is open. fn runs without the lock held,
// so concurrent calls are not serialized.
func (cb *CircuitBreaker) Call(_ context.Context, fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailTime) >= cb.config.Cooldown {
		cb.state = StateHalfOpen
		cb.successes = 0
	}
	if cb.state == StateOpen {
		return errors.New(errors.CodeTransport, "circuit breaker open", nil).
			WithContext("breaker", cb.config.Name).
			WithRecoverable(false)
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailTime = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.failures = 0
			cb.successes = 0
		}
		return
	}
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}
