// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed error taxonomy shared by the skill,
// operator, provider and review layers.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies runtime errors for callers, logs and metrics.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput marks a bad registration shape or a bad argument value.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound marks a lookup that produced nothing (skills, providers, operators).
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUserCancelled marks an explicit cancel from the person being prompted.
	CodeUserCancelled ErrorCode = "USER_CANCELLED"

	// CodeConfiguration marks a provider call that could not be attempted.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeTransport marks a non-2xx provider response.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeVendor marks a 2xx provider response carrying an error object.
	CodeVendor ErrorCode = "VENDOR_ERROR"

	// CodeShape marks a 2xx provider response without the expected text.
	CodeShape ErrorCode = "SHAPE_ERROR"

	// CodeCancelled marks an in-flight call stopped by its context.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeMalformedReply marks a model reply that could not be used at all.
	CodeMalformedReply ErrorCode = "MALFORMED_REPLY"

	// CodePolicyDenied marks a skill or operator call a governance rule refused.
	CodePolicyDenied ErrorCode = "POLICY_DENIED"
)

// AgentError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AgentError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AgentError) MarshalJSON() ([]byte, error) {
	type Alias AgentError
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new AgentError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *AgentError {
	return &AgentError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *AgentError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AgentError) WithContext(key string, value interface{}) *AgentError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *AgentError) WithAttribute(key, value string) *AgentError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *AgentError) WithRecoverable(recoverable bool) *AgentError {
	e.Recoverable = recoverable
	return e
}

// AsAgentError attempts to convert an error to an AgentError.
// Returns the error as AgentError if it is one, or wraps it otherwise.
func AsAgentError(err error) *AgentError {
	if err == nil {
		return nil
	}
	var ae *AgentError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first AgentError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ae *AgentError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *AgentError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// Validation builds an INVALID_INPUT error.
func Validation(format string, args ...any) *AgentError {
	return Newf(CodeInvalidInput, format, args...).WithRecoverable(false)
}

// NotFound builds a NOT_FOUND error naming the missing resource.
func NotFound(resource, name string) *AgentError {
	return New(CodeNotFound, fmt.Sprintf("%s %q not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name).
		WithRecoverable(false)
}

// UserCancelled builds the error returned when the user aborts an interaction.
func UserCancelled(stage string) *AgentError {
	return New(CodeUserCancelled, "cancelled by user", nil).
		WithContext("stage", stage).
		WithRecoverable(false)
}

// codeToStatusCode maps error codes to gRPC/HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeInvalidInput, CodeConfiguration:
		return 400
	case CodePolicyDenied:
		return 403
	case CodeTimeout:
		return 408
	case CodeUserCancelled, CodeCancelled:
		return 499
	case CodeTransport, CodeVendor, CodeShape, CodeMalformedReply:
		return 502
	default:
		return 500
	}
}
