// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance decides whether skills and operators may run. Rules
// are matched in order; the first match wins and unmatched actions are
// allowed.
package governance

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// ActionType describes the type of action to evaluate.
type ActionType string

const (
	ActionSkill    ActionType = "skill"
	ActionOperator ActionType = "operator"
	// ActionMCP is evaluated when an operator is published as an MCP tool.
	ActionMCP ActionType = "mcp"
)

// Action describes a decision target for policy evaluation.
type Action struct {
	Type ActionType
	Name string
	// Role is the role of the agent acting, when known.
	Role     string
	Metadata map[string]string
}

// Decision captures the outcome of a policy evaluation.
type Decision struct {
	Status DecisionStatus
	Reason string
	RuleID string
}

// DecisionStatus captures the policy outcome.
type DecisionStatus string

const (
	DecisionStatusAllow   DecisionStatus = "allow"
	DecisionStatusDeny    DecisionStatus = "deny"
	DecisionStatusPending DecisionStatus = "pending"
)

// PolicyEngine evaluates actions.
type PolicyEngine interface {
	Evaluate(ctx context.Context, action Action) Decision
}

// Rule defines a single policy rule. Empty Type, Name or Roles match
// everything.
type Rule struct {
	ID     string
	Effect string // allow, deny or pending
	Type   ActionType
	Name   string // glob pattern
	Roles  []string
	Reason string
}

// RuleSet evaluates rules in order.
type RuleSet struct {
	Rules []Rule
}

// NewRuleSet creates a rule set. Actions no rule matches are allowed.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{Rules: append([]Rule(nil), rules...)}
}

// Evaluate checks rules in order and returns the first match.
func (r *RuleSet) Evaluate(_ context.Context, action Action) Decision {
	for _, rule := range r.Rules {
		if rule.Type != "" && rule.Type != action.Type {
			continue
		}
		if rule.Name != "" && !matchPattern(rule.Name, action.Name) {
			continue
		}
		if len(rule.Roles) > 0 && !matchRole(rule.Roles, action.Role) {
			continue
		}
		decision := Decision{Reason: rule.Reason, RuleID: rule.ID}
		switch strings.ToLower(strings.TrimSpace(rule.Effect)) {
		case "deny":
			decision.Status = DecisionStatusDeny
		case "pending":
			decision.Status = DecisionStatusPending
		default:
			decision.Status = DecisionStatusAllow
		}
		return decision
	}
	return Decision{Status: DecisionStatusAllow}
}

// IsAllowed returns true when the decision permits the action.
func (d Decision) IsAllowed() bool { return d.Status == DecisionStatusAllow }

// IsPending returns true when the decision requires approval.
func (d Decision) IsPending() bool { return d.Status == DecisionStatusPending }

func matchPattern(pattern, value string) bool {
	ok, err := path.Match(pattern, value)
	if err == nil && ok {
		return true
	}
	return pattern == value
}

func matchRole(roles []string, role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range roles {
		if strings.ToLower(strings.TrimSpace(r)) == role {
			return true
		}
	}
	return false
}

// RuleSetFromConfig builds a rule set from the governance section.
func RuleSetFromConfig(cfg config.GovernanceConfig) *RuleSet {
	rules := make([]Rule, 0, len(cfg.Policies))
	for i, p := range cfg.Policies {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		rules = append(rules, Rule{
			ID:     id,
			Effect: p.Effect,
			Type:   ActionType(strings.ToLower(strings.TrimSpace(p.Type))),
			Name:   p.Name,
			Roles:  p.Roles,
			Reason: p.Reason,
		})
	}
	return NewRuleSet(rules)
}

// Enforce evaluates action and resolves pending decisions through hook. A
// pending decision without a hook is denied. The returned error is a
// POLICY_DENIED AgentError.
func Enforce(ctx context.Context, engine PolicyEngine, hook ApprovalHook, action Action) error {
	if engine == nil {
		return nil
	}
	decision := engine.Evaluate(ctx, action)
	if decision.IsPending() {
		if hook == nil {
			decision = Decision{Status: DecisionStatusDeny, Reason: "approval required", RuleID: decision.RuleID}
		} else {
			decision = hook.Request(ctx, action, decision)
		}
	}
	if decision.IsAllowed() {
		return nil
	}
	reason := decision.Reason
	if reason == "" {
		reason = "denied by policy"
	}
	return errors.Newf(errors.CodePolicyDenied, "%s %q: %s", action.Type, action.Name, reason).
		WithContext("rule", decision.RuleID).
		WithContext("role", action.Role)
}
