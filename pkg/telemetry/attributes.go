// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration, runtime metrics and
// structured logging for the skill and review runtime.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on spans and metrics.
const (
	// Agent attributes
	AttrAgentName = "ploinky.agent.name"
	AttrAgentRole = "ploinky.agent.role"
	AttrTaskMode  = "ploinky.task.mode"

	// Model call attributes (gen_ai conventions where they exist)
	AttrLLMModel      = "gen_ai.request.model"
	AttrLLMProvider   = "gen_ai.system"
	AttrLLMMessages   = "gen_ai.request.messages"
	AttrLLMDurationMs = "gen_ai.duration_ms"

	// Skill attributes
	AttrSkillName  = "ploinky.skill.name"
	AttrSkillStage = "ploinky.skill.stage" // "collect", "confirm", "execute"
	AttrSkillArgs  = "ploinky.skill.argument_count"

	// Operator selection attributes
	AttrOperatorCount     = "ploinky.operator.count"
	AttrOperatorSelected  = "ploinky.operator.selected"
	AttrOperatorThreshold = "ploinky.operator.threshold"

	// Review loop attributes
	AttrReviewSession  = "ploinky.review.session_id"
	AttrReviewIter     = "ploinky.review.iteration"
	AttrReviewMaxIter  = "ploinky.review.max_iterations"
	AttrReviewApproved = "ploinky.review.approved"

	// Task queue attributes
	AttrTaskID     = "ploinky.task.id"
	AttrTaskStatus = "ploinky.task.status"
)

// AgentAttributes returns attributes describing the agent a call runs as.
func AgentAttributes(name, role, mode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if name != "" {
		attrs = append(attrs, attribute.String(AttrAgentName, name))
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrAgentRole, role))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(AttrTaskMode, mode))
	}
	return attrs
}

// LLMAttributes returns attributes for model call spans.
func LLMAttributes(provider, model string, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMProvider, provider),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	return attrs
}

// SkillAttributes returns attributes for skill spans.
func SkillAttributes(name, stage string, argCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSkillName, name),
	}
	if stage != "" {
		attrs = append(attrs, attribute.String(AttrSkillStage, stage))
	}
	if argCount > 0 {
		attrs = append(attrs, attribute.Int(AttrSkillArgs, argCount))
	}
	return attrs
}

// OperatorAttributes returns attributes for an operator selection.
func OperatorAttributes(count, selected int, threshold float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrOperatorCount, count),
		attribute.Int(AttrOperatorSelected, selected),
		attribute.Float64(AttrOperatorThreshold, threshold),
	}
}

// ReviewAttributes returns attributes for one review iteration.
func ReviewAttributes(sessionID string, iteration, maxIter int, approved bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrReviewApproved, approved),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrReviewSession, sessionID))
	}
	if iteration > 0 {
		attrs = append(attrs, attribute.Int(AttrReviewIter, iteration))
	}
	if maxIter > 0 {
		attrs = append(attrs, attribute.Int(AttrReviewMaxIter, maxIter))
	}
	return attrs
}

// TaskAttributes returns attributes for task queue tracking.
func TaskAttributes(taskID, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if taskID != "" {
		attrs = append(attrs, attribute.String(AttrTaskID, taskID))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(AttrTaskStatus, status))
	}
	return attrs
}
