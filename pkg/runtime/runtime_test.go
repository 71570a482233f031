// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/prompt"
	"github.com/skutner/ploinky-sub003/pkg/review"
	"github.com/skutner/ploinky-sub003/pkg/skills"
	"github.com/skutner/ploinky-sub003/pkg/taskqueue"
)

func newRuntime(t *testing.T, h llm.Handler, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(append([]Option{WithoutDefaultProviders()}, opts...)...)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	if err := rt.RegisterProvider("scripted", h, nil); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	rec, err := agent.New("writer", agent.WithProvider("scripted"), agent.WithModels("small", "large"))
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	if err := rt.RegisterAgent(rec); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	return rt
}

func TestDefaultProviders(t *testing.T) {
	rt, err := New()
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer rt.Close()
	for _, key := range []string{"openai", "anthropic", "gemini", "huggingface", "ollama", "qwen"} {
		if !rt.Providers().Has(key) {
			t.Errorf("provider %s not registered", key)
		}
	}
}

func TestDoTaskFastAndDeep(t *testing.T) {
	h := llm.NewScriptedHandler()
	h.Respond = func(history []llm.Message, opts llm.CallOptions) (string, error) {
		last := history[len(history)-1].Content
		switch {
		case strings.HasPrefix(last, "Review of iteration"):
			return `{"approved": true}`, nil
		case strings.Contains(last, "step-by-step plan"):
			return `["check"]`, nil
		case strings.HasPrefix(last, "Iteration "):
			return "refined by " + opts.Model, nil
		}
		return "answer by " + opts.Model, nil
	}
	rt := newRuntime(t, h)
	ctx := context.Background()

	res, err := rt.DoTask(ctx, "writer", nil, "say hi", nil, "")
	if err != nil {
		t.Fatalf("DoTask: %v", err)
	}
	if res.Text != "answer by small" || h.CallCount() != 1 {
		t.Fatalf("expected a single fast call, got %q after %d calls", res.Text, h.CallCount())
	}

	res, err = rt.DoTask(ctx, "writer", nil, "say hi", nil, "deep")
	if err != nil {
		t.Fatalf("DoTask deep: %v", err)
	}
	if !res.Approved || res.Text != "refined by large" {
		t.Fatalf("deep mode must run the review loop on the deep model, got %+v", res)
	}

	if _, err := rt.DoTask(ctx, "nobody", nil, "x", nil, ""); !errors.Is(err, errors.CodeNotFound) {
		t.Fatalf("expected unknown agent error, got %v", err)
	}
}

func TestDoTaskWithReviewModes(t *testing.T) {
	h := llm.NewScriptedHandler()
	h.Respond = func(history []llm.Message, _ llm.CallOptions) (string, error) {
		last := history[len(history)-1].Content
		if strings.HasPrefix(last, "Review of iteration") {
			return `{"approved": false, "feedback": "more"}`, nil
		}
		return "text", nil
	}
	rt := newRuntime(t, h)
	ctx := context.Background()

	res, err := rt.DoTaskWithReview(ctx, "writer", []llm.Message{llm.System("be brief")}, "x", nil, "", 2)
	if err != nil {
		t.Fatalf("DoTaskWithReview: %v", err)
	}
	if res.Approved || res.Iterations != 2 {
		t.Fatalf("expected exhausted loop, got %+v", res)
	}
	// first pass, plan, then two candidate/review pairs
	if h.CallCount() != 6 {
		t.Fatalf("expected 6 model calls, got %d", h.CallCount())
	}
	if first := h.Calls()[0].History[0]; first.Content != "be brief" {
		t.Fatalf("history not forwarded: %+v", first)
	}

	before := h.CallCount()
	if _, err := rt.DoTaskWithReview(ctx, "writer", nil, "x", nil, "fast", 2); err != nil {
		t.Fatalf("fast review: %v", err)
	}
	if h.CallCount()-before != 1 {
		t.Fatalf("explicit fast mode must make one call")
	}
}

func TestChooseOperatorUsesConfiguredThreshold(t *testing.T) {
	h := llm.NewScriptedHandler(
		`{"suitableOperators":[{"operatorName":"archive","confidence":0.6}]}`,
		`{"suitableOperators":[{"operatorName":"archive","confidence":0.6}]}`,
	)
	rt := newRuntime(t, h, WithSettings(Settings{OperatorThreshold: 0.7}))
	if err := rt.RegisterOperator("archive", "Archive a document", func(context.Context, map[string]any) (any, error) {
		return "archived", nil
	}); err != nil {
		t.Fatalf("register operator: %v", err)
	}

	res, err := rt.ChooseOperator(context.Background(), "writer", "archive it", "fast", 0)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if len(res.SuitableOperators) != 0 {
		t.Fatalf("0.6 is below the configured 0.7, got %+v", res)
	}

	rt.UpdateSettings(Settings{OperatorThreshold: 0.5})
	res, err = rt.ChooseOperator(context.Background(), "writer", "archive it", "fast", 0)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if len(res.SuitableOperators) != 1 {
		t.Fatalf("expected archive after lowering the threshold, got %+v", res)
	}

	out, err := rt.CallOperator(context.Background(), "archive", nil)
	if err != nil || out != "archived" {
		t.Fatalf("call operator: %v %v", out, err)
	}
}

func TestUseSkillWithModelAssistance(t *testing.T) {
	h := llm.NewScriptedHandler(`{"city": "Paris"}`)
	p := prompt.NewScripted("somewhere nice, the french capital")
	rt := newRuntime(t, h, WithPrompter(p), WithModelAssistance("writer"))

	var got map[string]any
	if _, err := rt.RegisterSkill(skills.Spec{
		Name:                   "book-trip",
		Description:            "Book a trip to a city",
		Arguments:              []skills.ArgumentSpec{{Name: "city", Type: "string", Description: "Destination city", Required: true}},
		DisableTokenAssignment: true,
		Action: func(_ context.Context, args map[string]any) (any, error) {
			got = args
			return "booked", nil
		},
	}); err != nil {
		t.Fatalf("register skill: %v", err)
	}

	names, err := rt.RankSkill("book a trip", "")
	if err != nil || len(names) != 1 || names[0] != "book-trip" {
		t.Fatalf("rank: %v %v", names, err)
	}

	out, err := rt.UseSkill(context.Background(), "book-trip", nil, skills.UseOptions{SkipConfirmation: true})
	if err != nil {
		t.Fatalf("use skill: %v", err)
	}
	if out != "booked" || got["city"] != "Paris" {
		t.Fatalf("unexpected result %v args %v", out, got)
	}
	if h.CallCount() != 1 {
		t.Fatalf("expected one extraction call, got %d", h.CallCount())
	}
}

func writeSkill(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "archive")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := `---
name: archive
description: Archive a document by path.
arguments:
  - name: path
    type: string
    description: Document path
    required: true
---
`
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestManifestSkillRunsThroughQueue(t *testing.T) {
	q, err := taskqueue.Open(t.TempDir())
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	rt := newRuntime(t, llm.NewScriptedHandler(), WithQueue(q))
	if err := rt.RegisterOperator("archive", "Archive a document", func(_ context.Context, p map[string]any) (any, error) {
		return "archived " + p["path"].(string), nil
	}); err != nil {
		t.Fatalf("register operator: %v", err)
	}

	root := t.TempDir()
	writeSkill(t, root)
	names, err := rt.LoadSkills(root)
	if err != nil || len(names) != 1 {
		t.Fatalf("load skills: %v %v", names, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop()

	out, err := rt.UseSkill(ctx, "archive", map[string]any{"path": "notes.md"}, skills.UseOptions{SkipConfirmation: true})
	if err != nil {
		t.Fatalf("use skill: %v", err)
	}
	if out != "archived notes.md" {
		t.Fatalf("unexpected result %v", out)
	}
}

func TestQueueRequired(t *testing.T) {
	rt := newRuntime(t, llm.NewScriptedHandler())
	if err := rt.Start(context.Background()); !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := rt.Enqueue(context.Background(), "x", nil, nil); !errors.Is(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	dir := t.TempDir()
	cfg.Queue.Dir = filepath.Join(dir, "queue")
	cfg.Review.AuditPath = filepath.Join(dir, "audit.db")
	cfg.Skills.Dir = filepath.Join(dir, "skills")
	writeSkill(t, cfg.Skills.Dir)
	cfg.Agents = map[string]config.AgentConfig{
		"admin": {Role: "sysAdmin", FastModel: "m1", Mode: "deep"},
	}

	rt, err := FromConfig(cfg, WithoutDefaultProviders())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer rt.Close()

	def, err := rt.Agents().Get(DefaultAgent)
	if err != nil {
		t.Fatalf("default agent: %v", err)
	}
	if def.Provider != "ollama" || def.FastModel != cfg.LLM.Model {
		t.Fatalf("unexpected default agent %+v", def)
	}
	admin, err := rt.Agents().Get("admin")
	if err != nil || admin.Provider != "ollama" || admin.Role != "sysadmin" || admin.DefaultMode != agent.ModeDeep {
		t.Fatalf("unexpected admin agent %+v (%v)", admin, err)
	}
	if rt.Queue() == nil {
		t.Fatalf("queue not configured")
	}
	if _, err := rt.Skills().Get("archive"); err != nil {
		t.Fatalf("manifest skill not loaded: %v", err)
	}

	s := rt.Settings()
	if s.OperatorThreshold != 0.5 || s.MaxIterations != 3 || s.ReviewMode != agent.ModeFast {
		t.Fatalf("unexpected settings %+v", s)
	}
	cfg.Review.MaxIterations = 5
	cfg.Review.Mode = "deep"
	rt.ApplyConfig(cfg)
	if s := rt.Settings(); s.MaxIterations != 5 || s.ReviewMode != agent.ModeDeep {
		t.Fatalf("settings not reloaded: %+v", s)
	}
}

func TestAuditStoreReceivesReviewEvents(t *testing.T) {
	h := llm.NewScriptedHandler()
	h.Respond = func(history []llm.Message, _ llm.CallOptions) (string, error) {
		if strings.HasPrefix(history[len(history)-1].Content, "Review of iteration") {
			return `{"approved": true}`, nil
		}
		return "ok", nil
	}
	store := review.NewMemoryAuditStore()
	rt := newRuntime(t, h, WithAuditStore(store))

	res, err := rt.DoTaskWithReview(context.Background(), "writer", nil, "x", nil, "deep", 1)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	events, _ := store.List(context.Background(), review.AuditFilter{SessionID: res.SessionID})
	if len(events) != 4 {
		t.Fatalf("expected 4 audit events, got %d", len(events))
	}
}

func TestMCPServer(t *testing.T) {
	rt := newRuntime(t, llm.NewScriptedHandler())
	_ = rt.RegisterOperator("echo", "Echo params", func(_ context.Context, p map[string]any) (any, error) { return p, nil })

	srv, err := rt.MCPServer("ploinky", "test", "writer")
	if err != nil {
		t.Fatalf("mcp server: %v", err)
	}
	tools := strings.Join(srv.Tools(), ",")
	for _, want := range []string{"echo", "choose_operator", "rank_skills"} {
		if !strings.Contains(tools, want) {
			t.Fatalf("tool %s missing from %s", want, tools)
		}
	}
	if _, err := rt.MCPServer("ploinky", "test", "nobody"); !errors.Is(err, errors.CodeNotFound) {
		t.Fatalf("expected unknown agent error, got %v", err)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if PolicyFromConfig(cfg).Enabled() {
		t.Fatalf("default configuration must not retry or break circuits")
	}
	cfg.LLM.Retry.MaxAttempts = 3
	cfg.LLM.Breaker.FailureThreshold = 4
	p := PolicyFromConfig(cfg)
	if !p.Enabled() || p.Retry.MaxAttempts != 3 || p.Retry.InitialDelay != 200*time.Millisecond {
		t.Fatalf("unexpected retry policy %+v", p.Retry)
	}
	if p.Breaker.FailureThreshold != 4 || p.Breaker.Cooldown != 30*time.Second {
		t.Fatalf("unexpected breaker policy %+v", p.Breaker)
	}
}
