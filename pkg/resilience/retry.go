// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience adds opt-in retries and circuit breaking to the
// provider transport. Nothing here is active unless a Policy enables it.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts. One or less disables retries.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// IsRecoverable decides whether an error is worth another attempt.
	// Defaults to IsRecoverable.
	IsRecoverable func(error) bool

	// Jitter adds randomness to backoff; 0.1 means ±10%.
	Jitter float64
}

// DefaultRetryConfig returns three attempts starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: IsRecoverable,
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a new config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a new config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do runs fn until it succeeds, fails with an unrecoverable error or runs
// out of attempts. The last error is returned unchanged.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = IsRecoverable
	}

	var lastErr error
	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(calculateBackoff(attempt, rc))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.New(errors.CodeCancelled, "context cancelled during retry", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("max_attempts", rc.MaxAttempts).
					WithContext("last_error", lastErr.Error())
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !rc.IsRecoverable(err) {
			return err
		}
	}
	return lastErr
}

// calculateBackoff computes the delay before retry number attempt (1-based).
func calculateBackoff(attempt int, rc RetryConfig) time.Duration {
	if rc.Multiplier == 0 {
		rc.Multiplier = 2.0
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(attempt-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := float64(delay) * rc.Jitter
		delay = time.Duration(float64(delay) + 2*spread*(rand.Float64()-0.5))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// IsRecoverable reports whether err is an AgentError flagged recoverable.
// Untyped errors are not retried.
func IsRecoverable(err error) bool {
	var ae *errors.AgentError
	if stderrors.As(err, &ae) {
		return ae.Recoverable
	}
	return false
}
