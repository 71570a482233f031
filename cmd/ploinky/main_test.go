// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/errors"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{in: strings.NewReader(""), out: &out, errOut: &errOut}
	err := a.command().Run(context.Background(), append([]string{"ploinky"}, args...))
	return out.String(), errOut.String(), err
}

func workspace(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "skills", "archive")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `---
name: archive
description: Archive a document by path.
roles: [editor]
arguments:
  - name: path
    type: string
    description: Document path
    required: true
---
`
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return []string{
		"--set", "skills.dir=" + filepath.Join(dir, "skills"),
		"--set", "queue.dir=" + filepath.Join(dir, "queue"),
		"--set", "log.level=error",
	}
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"path=notes.md", "count=3", "force=true", "empty="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["path"] != "notes.md" || got["count"] != 3 || got["force"] != true || got["empty"] != "" {
		t.Fatalf("unexpected values %#v", got)
	}
	if _, err := parseKeyValues([]string{"novalue"}); err == nil {
		t.Fatalf("expected an error for a pair without '='")
	}
}

func TestTelemetryConfigAuth(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telemetry.Exporter = "otlp"
	cfg.Telemetry.OTLPHeaders = map[string]string{"x-team": "core"}
	cfg.Telemetry.OTLPToken = "secret"

	tc := telemetryConfig(cfg, "")
	if tc.OTLPHeaders["Authorization"] != "Bearer secret" || tc.OTLPHeaders["x-team"] != "core" {
		t.Fatalf("unexpected headers %v", tc.OTLPHeaders)
	}
	cfg.Telemetry.OTLPUser = "bob"
	tc = telemetryConfig(cfg, "")
	if tc.OTLPHeaders["Authorization"] != "Basic "+basicAuth("bob", "secret") {
		t.Fatalf("expected basic auth, got %v", tc.OTLPHeaders)
	}
}

func TestTelemetryConfigResource(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "openai"
	cfg.Agents = map[string]config.AgentConfig{
		"writer": {Provider: "anthropic"},
		"critic": {Provider: "openai"},
		"local":  {},
	}

	tc := telemetryConfig(cfg, "dev")
	if tc.Environment != "dev" {
		t.Fatalf("expected environment dev, got %q", tc.Environment)
	}
	if got := strings.Join(tc.Providers, ","); got != "anthropic,openai" {
		t.Fatalf("unexpected providers %q", got)
	}
}

func TestSkillsListAndRank(t *testing.T) {
	base := workspace(t)

	out, _, err := runCLI(t, append(base, "skills", "list")...)
	if err != nil {
		t.Fatalf("skills list: %v", err)
	}
	if !strings.Contains(out, "archive") || !strings.Contains(out, "editor") {
		t.Fatalf("unexpected listing:\n%s", out)
	}

	out, _, err = runCLI(t, append(base, "--json", "skills", "rank", "--role", "editor", "archive", "document")...)
	if err != nil {
		t.Fatalf("skills rank: %v", err)
	}
	var scored []map[string]any
	if err := json.Unmarshal([]byte(out), &scored); err != nil || len(scored) != 1 || scored[0]["name"] != "archive" {
		t.Fatalf("unexpected ranking %s (%v)", out, err)
	}

	_, _, err = runCLI(t, append(base, "skills", "rank", "--role", "viewer", "archive")...)
	if !errors.Is(err, errors.CodeNotFound) {
		t.Fatalf("expected no match for another role, got %v", err)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	base := workspace(t)

	out, _, err := runCLI(t, append(base, "queue", "enqueue", "--param", "path=a.md", "archive")...)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatalf("expected a task id")
	}

	out, _, err = runCLI(t, append(base, "queue", "pending")...)
	if err != nil || !strings.Contains(out, id) {
		t.Fatalf("pending: %v\n%s", err, out)
	}

	if _, _, err := runCLI(t, append(base, "queue", "respond", id, `{"archived":true}`)...); err != nil {
		t.Fatalf("respond: %v", err)
	}
	out, _, err = runCLI(t, append(base, "queue", "wait", "--timeout", "1s", id)...)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !strings.Contains(out, `"archived": true`) {
		t.Fatalf("unexpected reply %s", out)
	}
}

func TestQueueFailedTask(t *testing.T) {
	base := workspace(t)
	out, _, err := runCLI(t, append(base, "queue", "enqueue", "archive")...)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := strings.TrimSpace(out)
	if _, _, err := runCLI(t, append(base, "queue", "fail", id, "disk", "full")...); err != nil {
		t.Fatalf("fail: %v", err)
	}
	_, _, err = runCLI(t, append(base, "queue", "wait", "--timeout", "1s", id)...)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected the failure message, got %v", err)
	}
}

func TestOperatorsFromConfig(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	base := workspace(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `operators:
  commands:
    greet:
      description: Print a greeting
      command: ["sh", "-c", "echo hello"]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	args := append([]string{"--config", cfgPath}, base...)

	out, _, err := runCLI(t, append(args, "operators", "list")...)
	if err != nil || !strings.Contains(out, "greet") {
		t.Fatalf("operators list: %v\n%s", err, out)
	}
	out, _, err = runCLI(t, append(args, "operators", "call", "greet")...)
	if err != nil || strings.TrimSpace(out) != "hello" {
		t.Fatalf("operators call: %v %q", err, out)
	}
}

func TestMissingArguments(t *testing.T) {
	base := workspace(t)
	for _, args := range [][]string{
		{"skills", "rank"},
		{"skills", "use"},
		{"task"},
		{"queue", "respond", "only-id"},
	} {
		_, _, err := runCLI(t, append(base, args...)...)
		if !errors.Is(err, errors.CodeInvalidInput) {
			t.Fatalf("%v: expected invalid input, got %v", args, err)
		}
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	a := &app{errOut: &buf}
	a.printError(errors.New(errors.CodeTimeout, "no reply", nil))
	if !strings.Contains(buf.String(), "[TIMEOUT] no reply") || !strings.Contains(buf.String(), "Hint:") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	a.json = true
	a.printError(errors.NotFound("skill", "archive"))
	var payload map[string]map[string]string
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"]["code"] != "NOT_FOUND" || payload["error"]["hint"] == "" {
		t.Fatalf("unexpected payload %v", payload)
	}

	if exitCode(errors.UserCancelled("confirmation")) != 130 || exitCode(errors.Validation("x")) != 2 {
		t.Fatalf("unexpected exit codes")
	}
}
