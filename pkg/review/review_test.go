// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
)

func newRunner(t *testing.T, h *llm.ScriptedHandler, opts ...RunnerOption) *Runner {
	t.Helper()
	reg := llm.NewRegistry()
	if err := reg.Register(llm.Record{Key: "scripted", Handler: h}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewRunner(llm.NewClient(reg), opts...)
}

func lastContent(history []llm.Message) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Content
}

// router answers by looking at which step of the loop a prompt belongs to.
type router struct {
	first    string
	plan     string
	refine   func(iteration int) string
	review   func(iteration int) string
	reviews  int
	refines  int
	plans    int
	firsts   int
	refineOn []string
}

func (r *router) respond(history []llm.Message, _ llm.CallOptions) (string, error) {
	prompt := lastContent(history)
	switch {
	case strings.HasPrefix(prompt, "Review of iteration"):
		r.reviews++
		return r.review(r.reviews), nil
	case strings.HasPrefix(prompt, "Iteration "):
		r.refines++
		r.refineOn = append(r.refineOn, prompt)
		return r.refine(r.refines), nil
	case strings.Contains(prompt, "step-by-step plan"):
		r.plans++
		return r.plan, nil
	default:
		r.firsts++
		return r.first, nil
	}
}

func TestDoTaskWithReviewApprovesCorrection(t *testing.T) {
	rt := &router{
		first:  "11",
		plan:   `["Add the numbers carefully", "Double-check the sum"]`,
		refine: func(int) string { return "14 (correct)" },
		review: func(int) string { return `{"approved": true, "feedback": "Looks right."}` },
	}
	h := llm.NewScriptedHandler()
	h.Respond = rt.respond
	store := NewMemoryAuditStore()
	runner := newRunner(t, h, WithAuditStore(store))

	res, err := runner.DoTaskWithReview(context.Background(), Task{
		Provider:    "scripted",
		Description: "What is 9 + 5?",
	}, 3)
	if err != nil {
		t.Fatalf("DoTaskWithReview: %v", err)
	}
	if !strings.Contains(res.Text, "14") {
		t.Fatalf("expected corrected answer, got %q", res.Text)
	}
	if !res.Approved || res.Iterations != 1 {
		t.Fatalf("expected approval on iteration 1, got %+v", res)
	}
	if rt.plans != 1 || rt.refines != 1 || rt.reviews != 1 {
		t.Fatalf("unexpected call counts plan=%d refine=%d review=%d", rt.plans, rt.refines, rt.reviews)
	}
	if !strings.Contains(rt.refineOn[0], "Iteration 1 of 3") {
		t.Fatalf("refine prompt missing iteration marker: %q", rt.refineOn[0])
	}
	if len(res.Plan) != 2 || res.Plan[0] != "Add the numbers carefully" {
		t.Fatalf("unexpected plan %v", res.Plan)
	}
	if res.SessionID == "" {
		t.Fatalf("expected a session id")
	}

	events, err := store.List(context.Background(), AuditFilter{SessionID: res.SessionID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	stages := make([]string, 0, len(events))
	for _, ev := range events {
		stages = append(stages, ev.Stage)
	}
	want := []string{StageFirstPass, StagePlan, StageCandidate, StageReview}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Fatalf("audit stages = %v, want %v", stages, want)
	}
}

func TestDoTaskWithReviewExhaustsBudget(t *testing.T) {
	rt := &router{
		first:  "draft",
		plan:   "1. think\n2. answer",
		refine: func(i int) string { return "candidate " + string(rune('0'+i)) },
		review: func(int) string { return `{"approved": false, "feedback": "try again"}` },
	}
	h := llm.NewScriptedHandler()
	h.Respond = rt.respond
	runner := newRunner(t, h)

	res, err := runner.DoTaskWithReview(context.Background(), Task{Provider: "scripted", Description: "x"}, 2)
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if res.Approved {
		t.Fatalf("expected no approval")
	}
	if res.Text != "candidate 2" || res.Iterations != 2 {
		t.Fatalf("expected last candidate, got %+v", res)
	}
	if rt.reviews > 2 {
		t.Fatalf("reviewer called %d times, budget was 2", rt.reviews)
	}
	if !strings.Contains(rt.refineOn[1], "try again") {
		t.Fatalf("feedback must reach the next iteration: %q", rt.refineOn[1])
	}
	if len(res.Plan) != 2 || res.Plan[1] != "answer" {
		t.Fatalf("plan lines not parsed: %v", res.Plan)
	}
}

func TestUnparseableReviewIsRejection(t *testing.T) {
	rt := &router{
		first:  "a",
		plan:   `["p"]`,
		refine: func(int) string { return "b" },
		review: func(int) string { return "I cannot decide" },
	}
	h := llm.NewScriptedHandler()
	h.Respond = rt.respond
	runner := newRunner(t, h)

	res, err := runner.DoTaskWithReview(context.Background(), Task{Provider: "scripted", Description: "x"}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Approved {
		t.Fatalf("unparseable review must not approve")
	}
	if res.Feedback != "I cannot decide" {
		t.Fatalf("expected raw reply as feedback, got %q", res.Feedback)
	}
}

func TestDoTaskFastSingleCall(t *testing.T) {
	h := llm.NewScriptedHandler("hello")
	runner := newRunner(t, h)

	res, err := runner.DoTask(context.Background(), Task{Provider: "scripted", Description: "greet", Mode: agent.ModeFast})
	if err != nil {
		t.Fatalf("DoTask: %v", err)
	}
	if res.Text != "hello" || h.CallCount() != 1 {
		t.Fatalf("expected one call returning hello, got %q after %d calls", res.Text, h.CallCount())
	}
	if h.Calls()[0].Options.Mode != "fast" {
		t.Fatalf("mode not forwarded: %+v", h.Calls()[0].Options)
	}
}

func TestDoTaskDeepUsesReview(t *testing.T) {
	rt := &router{
		first:  "a",
		plan:   `{"plan": ["one"]}`,
		refine: func(int) string { return "b" },
		review: func(int) string { return `{"approved": true}` },
	}
	h := llm.NewScriptedHandler()
	h.Respond = rt.respond
	runner := newRunner(t, h, WithMaxIterations(4))

	res, err := runner.DoTask(context.Background(), Task{Provider: "scripted", Description: "x", Mode: agent.ModeDeep})
	if err != nil {
		t.Fatalf("DoTask: %v", err)
	}
	if !res.Approved || rt.reviews != 1 {
		t.Fatalf("expected review loop, got %+v reviews=%d", res, rt.reviews)
	}
	if !strings.Contains(rt.refineOn[0], "Iteration 1 of 4") {
		t.Fatalf("runner budget not used: %q", rt.refineOn[0])
	}
	if len(res.Plan) != 1 || res.Plan[0] != "one" {
		t.Fatalf("wrapped plan not parsed: %v", res.Plan)
	}
}

func sumSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"sum"},
		Properties: map[string]*jsonschema.Schema{
			"sum": {Type: "integer"},
		},
	}
}

func TestDoTaskFastSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h := llm.NewScriptedHandler("```json\n{\"sum\": 14}\n```")
		runner := newRunner(t, h)
		res, err := runner.DoTask(context.Background(), Task{Provider: "scripted", Description: "sum", Schema: sumSchema()})
		if err != nil {
			t.Fatalf("DoTask: %v", err)
		}
		obj, ok := res.Value.(map[string]any)
		if !ok || obj["sum"] != float64(14) {
			t.Fatalf("unexpected value %#v", res.Value)
		}
		if !strings.Contains(lastContent(h.Calls()[0].History), `"sum"`) {
			t.Fatalf("schema must be part of the prompt")
		}
	})
	t.Run("invalid", func(t *testing.T) {
		h := llm.NewScriptedHandler(`{"sum": "fourteen"}`)
		runner := newRunner(t, h)
		_, err := runner.DoTask(context.Background(), Task{Provider: "scripted", Description: "sum", Schema: sumSchema()})
		if !errors.Is(err, errors.CodeMalformedReply) {
			t.Fatalf("expected malformed reply, got %v", err)
		}
	})
	t.Run("not json", func(t *testing.T) {
		h := llm.NewScriptedHandler("fourteen")
		runner := newRunner(t, h)
		_, err := runner.DoTask(context.Background(), Task{Provider: "scripted", Description: "sum", Schema: sumSchema()})
		if !errors.Is(err, errors.CodeMalformedReply) {
			t.Fatalf("expected malformed reply, got %v", err)
		}
	})
}

func TestReviewRejectsSchemaInvalidCandidateLocally(t *testing.T) {
	rt := &router{
		first: `{"sum": 11}`,
		plan:  `["add"]`,
		refine: func(i int) string {
			if i == 1 {
				return "fourteen"
			}
			return `{"sum": 14}`
		},
		review: func(int) string { return `{"approved": true}` },
	}
	h := llm.NewScriptedHandler()
	h.Respond = rt.respond
	runner := newRunner(t, h)

	res, err := runner.DoTaskWithReview(context.Background(), Task{Provider: "scripted", Description: "sum", Schema: sumSchema()}, 3)
	if err != nil {
		t.Fatalf("DoTaskWithReview: %v", err)
	}
	if rt.reviews != 1 || res.Iterations != 2 {
		t.Fatalf("invalid candidate must skip the reviewer: reviews=%d iterations=%d", rt.reviews, res.Iterations)
	}
	if !strings.Contains(rt.refineOn[1], "schema") {
		t.Fatalf("schema feedback missing from second iteration: %q", rt.refineOn[1])
	}
	if obj := res.Value.(map[string]any); obj["sum"] != float64(14) {
		t.Fatalf("unexpected value %#v", res.Value)
	}
}

func TestReviewExhaustedOnSchemaInvalidCandidate(t *testing.T) {
	rt := &router{
		first:  `{"sum": 11}`,
		plan:   `["add"]`,
		refine: func(int) string { return "fourteen" },
		review: func(int) string { return `{"approved": true}` },
	}
	h := llm.NewScriptedHandler()
	h.Respond = rt.respond
	runner := newRunner(t, h)

	res, err := runner.DoTaskWithReview(context.Background(), Task{Provider: "scripted", Description: "sum", Schema: sumSchema()}, 2)
	if err != nil {
		t.Fatalf("exhaustion must not fail: %v", err)
	}
	if res.Approved || res.Iterations != 2 || res.Text != "fourteen" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Value != nil {
		t.Fatalf("non-conforming candidate must carry no value, got %#v", res.Value)
	}
	if rt.reviews != 0 {
		t.Fatalf("reviewer must not see invalid candidates, saw %d", rt.reviews)
	}
}

func TestReviewFastModeSkipsLoop(t *testing.T) {
	h := llm.NewScriptedHandler("quick")
	runner := newRunner(t, h)
	res, err := runner.DoTaskWithReview(context.Background(), Task{Provider: "scripted", Description: "x", Mode: agent.ModeFast}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "quick" || h.CallCount() != 1 {
		t.Fatalf("fast mode must make one call, made %d", h.CallCount())
	}
}

func TestProviderErrorStopsLoop(t *testing.T) {
	h := llm.NewScriptedHandler()
	h.Err = errors.New(errors.CodeTransport, "boom", nil)
	runner := newRunner(t, h)
	_, err := runner.DoTaskWithReview(context.Background(), Task{Provider: "scripted", Description: "x"}, 3)
	if !errors.Is(err, errors.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if h.CallCount() != 1 {
		t.Fatalf("expected the loop to stop after the failure, got %d calls", h.CallCount())
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"json array", `["a", "b"]`, []string{"a", "b"}},
		{"wrapped", `{"plan": ["a"]}`, []string{"a"}},
		{"bullets", "- a\n* b\n\n3) c", []string{"a", "b", "c"}},
		{"fenced", "```json\n[\"x\"]\n```", []string{"x"}},
		{"json steps keep leading digits", `["3D-render the model", "10 files must be renamed", "2024 totals"]`,
			[]string{"3D-render the model", "10 files must be renamed", "2024 totals"}},
		{"numbered lines", "1. 3D-render the model\n2) 2024 totals\n10 files must be renamed",
			[]string{"3D-render the model", "2024 totals", "10 files must be renamed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePlan(tt.reply)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("ParsePlan(%q) = %v, want %v", tt.reply, got, tt.want)
			}
		})
	}
}
