// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// CLIError pairs a runtime error with a hint for the person at the terminal.
type CLIError struct {
	*errors.AgentError
	Hint string
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.AgentError == nil {
		return "unknown error"
	}
	msg := e.AgentError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the runtime error.
func (e *CLIError) Unwrap() error { return e.AgentError }

// wrapError attaches a hint derived from the error code.
func wrapError(err error) *CLIError {
	ae := errors.AsAgentError(err)
	return &CLIError{AgentError: ae, Hint: hintFor(ae)}
}

func hintFor(ae *errors.AgentError) string {
	switch ae.Code {
	case errors.CodeConfiguration:
		return "check the llm and agents sections of the configuration, or pass --set llm.api_key=..."
	case errors.CodeNotFound:
		if ae.Context["resource"] != nil {
			return fmt.Sprintf("list the available %ss and check the name", ae.Context["resource"])
		}
		return "try a broader query or another role"
	case errors.CodeTransport:
		return "check that the provider is reachable and the base URL is right"
	case errors.CodeTimeout:
		return "raise the timeout or check that a queue worker is running"
	case errors.CodeMalformedReply:
		return "the model reply was unusable; retry or use a stronger model"
	case errors.CodePolicyDenied:
		if rule, _ := ae.Context["rule"].(string); rule != "" {
			return fmt.Sprintf("governance rule %s refused the call", rule)
		}
		return "a governance rule refused the call"
	default:
		return ""
	}
}

// printError writes err to the error stream, as JSON in --json mode.
func (a *app) printError(err error) {
	ce := wrapError(err)
	if a.json {
		payload := map[string]any{"error": map[string]any{
			"code":    string(ce.Code),
			"message": ce.AgentError.Error(),
			"hint":    ce.Hint,
		}}
		_ = json.NewEncoder(a.errOut).Encode(payload)
		return
	}
	if ce.Code == errors.CodeInternal && ce.Message == "wrapped error" {
		fmt.Fprintf(a.errOut, "Error: %v\n", ce.Err)
		return
	}
	fmt.Fprintf(a.errOut, "Error: %s\n", ce.AgentError.Error())
	if ce.Hint != "" {
		fmt.Fprintf(a.errOut, "  Hint: %s\n", ce.Hint)
	}
}

// exitCode maps error codes to process exit codes.
func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeUserCancelled, errors.CodeCancelled:
		return 130
	case errors.CodeInvalidInput, errors.CodeConfiguration:
		return 2
	default:
		return 1
	}
}
