// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/prompt"
)

// ApprovalHook asks for a decision on an action a pending rule matched.
type ApprovalHook interface {
	Request(ctx context.Context, action Action, pending Decision) Decision
}

// StaticApprovalHook returns a fixed decision for every request.
type StaticApprovalHook struct {
	Decision Decision
}

// Request returns the configured decision, denying when none is set.
func (h StaticApprovalHook) Request(_ context.Context, _ Action, pending Decision) Decision {
	if h.Decision.Status == "" {
		return Decision{Status: DecisionStatusDeny, Reason: "approval decision not set", RuleID: pending.RuleID}
	}
	return h.Decision
}

// PromptApprovalHook asks the person at a prompter. Only answers starting
// with "y" approve; anything else, including a read error, denies.
type PromptApprovalHook struct {
	Prompter prompt.Prompter
}

// Request implements ApprovalHook.
func (h PromptApprovalHook) Request(ctx context.Context, action Action, pending Decision) Decision {
	if h.Prompter == nil {
		return Decision{Status: DecisionStatusDeny, Reason: "approval input not available", RuleID: pending.RuleID}
	}
	reason := pending.Reason
	if reason == "" {
		reason = "approval required"
	}
	question := fmt.Sprintf("Approval required for %s %q (%s). Approve? [y/N]", action.Type, action.Name, reason)
	answer, err := h.Prompter.Ask(ctx, question)
	if err != nil {
		return Decision{Status: DecisionStatusDeny, Reason: "approval cancelled", RuleID: pending.RuleID}
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
		return Decision{Status: DecisionStatusAllow, Reason: "approved", RuleID: pending.RuleID}
	}
	return Decision{Status: DecisionStatusDeny, Reason: "rejected", RuleID: pending.RuleID}
}
