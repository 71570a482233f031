// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"strings"
	"testing"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/prompt"
)

func accountContext(t *testing.T) *ExecutionContext {
	t.Helper()
	ec := NewExecutionContext(mustSkill(t, Spec{
		Name:        "create-account",
		Description: "Create a login account",
		Arguments: []ArgumentSpec{
			{Name: "name", Required: true},
			{Name: "password", Required: true},
			{Name: "apiKey"},
			{Name: "note"},
			{Name: "nickname"},
		},
		NeedConfirmation: true,
	}))
	for k, v := range map[string]any{"name": "alice", "password": "s3cret", "note": ""} {
		if err := ec.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	return ec
}

func TestConfirmerSummary(t *testing.T) {
	summary := NewConfirmer(accountContext(t)).Summary()
	want := "Ready to run: Create a login account\n" +
		"  name: alice\n" +
		"  password: ********\n" +
		"  apiKey: ********\n" +
		"  note: (empty string)\n" +
		"  nickname: (not provided)\n"
	if summary != want {
		t.Fatalf("summary mismatch:\n%s\nwant:\n%s", summary, want)
	}
}

func TestFormatValueMasksSensitiveNames(t *testing.T) {
	for _, name := range []string{"password", "DB_PASSWORD", "clientSecret", "accessToken", "sshKey", "keyring"} {
		for _, v := range []any{"plain", "", 42, nil} {
			if got := FormatValue(name, v, v != nil); got != "********" {
				t.Fatalf("%s=%v rendered as %q", name, v, got)
			}
		}
	}
}

func TestConfirmerQuickReplies(t *testing.T) {
	tests := []struct {
		reply string
		want  ConfirmState
		err   errors.ErrorCode
	}{
		{reply: "OK", want: Confirmed},
		{reply: "go ahead!", want: Confirmed},
		{reply: "da", want: Confirmed},
		{reply: "No.", want: ConfirmCancelled, err: errors.CodeUserCancelled},
		{reply: "renunta", want: ConfirmCancelled, err: errors.CodeUserCancelled},
		{reply: "", want: AwaitingResponse},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			c := NewConfirmer(accountContext(t), WithClassifier(failingClassifier{t}))
			state, err := c.Handle(context.Background(), tt.reply)
			if state != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, state)
			}
			if errors.CodeOf(err) != tt.err {
				t.Fatalf("expected error code %q, got %v", tt.err, err)
			}
		})
	}
}

type failingClassifier struct{ t *testing.T }

func (f failingClassifier) Classify(context.Context, *Skill, string, string) (Decision, error) {
	f.t.Fatalf("quick replies must not reach the classifier")
	return Decision{}, nil
}

func TestConfirmerDirectEdit(t *testing.T) {
	ec := accountContext(t)
	c := NewConfirmer(ec, WithClassifier(failingClassifier{t}))
	state, err := c.Handle(context.Background(), "name bob")
	if err != nil || state != AwaitingResponse {
		t.Fatalf("expected awaiting, got %s %v", state, err)
	}
	if ec.Args["name"] != "bob" {
		t.Fatalf("edit not applied: %v", ec.Args)
	}
	if !strings.Contains(c.Prompt(), "name: bob") {
		t.Fatalf("summary must be regenerated:\n%s", c.Prompt())
	}
}

func TestConfirmerManualEditWithoutClassifier(t *testing.T) {
	ec := accountContext(t)
	c := NewConfirmer(ec)

	if state, _ := c.Handle(context.Background(), "edit"); state != AwaitingResponse {
		t.Fatalf("expected awaiting, got %s", state)
	}
	if !strings.HasPrefix(c.Prompt(), "Enter the changes") {
		t.Fatalf("expected manual update prompt, got %q", c.Prompt())
	}
	if state, _ := c.Handle(context.Background(), "nickname ally"); state != AwaitingResponse {
		t.Fatalf("expected awaiting, got %s", state)
	}
	if ec.Args["nickname"] != "ally" {
		t.Fatalf("manual update not applied: %v", ec.Args)
	}

	if state, _ := c.Handle(context.Background(), "what does this do?"); state != AwaitingResponse {
		t.Fatalf("expected awaiting, got %s", state)
	}
	if n := c.Notices(); len(n) != 1 || n[0] != Guidance {
		t.Fatalf("expected guidance, got %v", n)
	}
}

func TestConfirmerQuickRepliesDuringManualEdit(t *testing.T) {
	tests := []struct {
		reply   string
		want    ConfirmState
		wantErr bool
	}{
		{reply: "cancel", want: ConfirmCancelled, wantErr: true},
		{reply: "ok", want: Confirmed},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			c := NewConfirmer(accountContext(t))
			if state, _ := c.Handle(context.Background(), "edit"); state != AwaitingResponse {
				t.Fatalf("expected awaiting, got %s", state)
			}
			state, err := c.Handle(context.Background(), tt.reply)
			if state != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, state)
			}
			if tt.wantErr != errors.Is(err, errors.CodeUserCancelled) {
				t.Fatalf("unexpected error %v", err)
			}
			if len(c.Notices()) != 0 {
				t.Fatalf("unexpected notices %v", c.Notices())
			}
		})
	}
}

func scriptedModel(t *testing.T, replies ...string) (*Model, *llm.ScriptedHandler) {
	t.Helper()
	handler := llm.NewScriptedHandler(replies...)
	reg := llm.NewRegistry()
	if err := reg.Register(llm.Record{Key: "scripted", Handler: handler}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return &Model{Invoker: llm.NewClient(reg), Provider: "scripted"}, handler
}

func TestConfirmerClassifier(t *testing.T) {
	t.Run("edit with updates", func(t *testing.T) {
		model, handler := scriptedModel(t, `{"action":"edit","updates":{"name":"dave"}}`)
		ec := accountContext(t)
		c := NewConfirmer(ec, WithClassifier(model))
		if state, err := c.Handle(context.Background(), "actually make it dave please"); state != AwaitingResponse || err != nil {
			t.Fatalf("expected awaiting, got %s %v", state, err)
		}
		if ec.Args["name"] != "dave" || handler.CallCount() != 1 {
			t.Fatalf("unexpected outcome %v (%d calls)", ec.Args, handler.CallCount())
		}
	})

	t.Run("edit clearing a required argument", func(t *testing.T) {
		model, _ := scriptedModel(t, `{"action":"edit","updates":{"password":null}}`)
		ec := accountContext(t)
		c := NewConfirmer(ec, WithClassifier(model))
		if state, _ := c.Handle(context.Background(), "drop the password"); state != NeedsCollection {
			t.Fatalf("expected needs_collection, got %s", state)
		}
	})

	t.Run("edit without updates asks for manual changes", func(t *testing.T) {
		model, _ := scriptedModel(t, `{"action":"edit"}`)
		c := NewConfirmer(accountContext(t), WithClassifier(model))
		c.Handle(context.Background(), "I want to change something")
		if !strings.HasPrefix(c.Prompt(), "Enter the changes") {
			t.Fatalf("expected manual update prompt")
		}
	})

	t.Run("confirm", func(t *testing.T) {
		model, _ := scriptedModel(t, "The user agrees: {\"action\": \"Confirm\"}")
		c := NewConfirmer(accountContext(t), WithClassifier(model))
		if state, _ := c.Handle(context.Background(), "looks right to me"); state != Confirmed {
			t.Fatalf("expected confirmed, got %s", state)
		}
	})

	t.Run("unparseable reply", func(t *testing.T) {
		model, _ := scriptedModel(t, "no idea")
		c := NewConfirmer(accountContext(t), WithClassifier(model))
		if state, err := c.Handle(context.Background(), "hmm"); state != AwaitingResponse || err != nil {
			t.Fatalf("expected awaiting, got %s %v", state, err)
		}
		if n := c.Notices(); len(n) != 1 || n[0] != Guidance {
			t.Fatalf("expected guidance, got %v", n)
		}
	})
}

func TestConfirmerRun(t *testing.T) {
	p := prompt.NewScripted("", "huh", "yes")
	state, err := NewConfirmer(accountContext(t)).Run(context.Background(), p)
	if err != nil || state != Confirmed {
		t.Fatalf("expected confirmed, got %s %v", state, err)
	}
	if len(p.Prompts()) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(p.Prompts()))
	}
	if n := p.Notices(); len(n) != 1 || n[0] != Guidance {
		t.Fatalf("expected guidance notice, got %v", n)
	}
	for _, text := range p.Prompts() {
		if strings.Contains(text, "s3cret") {
			t.Fatalf("secret leaked in prompt %q", text)
		}
	}
}
