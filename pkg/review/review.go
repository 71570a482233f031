// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package review runs model tasks either as a single call or through a
// bounded plan, iterate and review loop.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/telemetry"
)

// DefaultMaxIterations bounds the review loop when no budget is given.
const DefaultMaxIterations = 3

// Task is a unit of work for the model.
type Task struct {
	Provider    string
	History     []llm.Message
	Description string
	// Schema, when set, requires a JSON reply that validates against it.
	Schema  *jsonschema.Schema
	Mode    agent.Mode
	Options llm.CallOptions
}

// Result is the outcome of a task. Value holds the decoded reply when the
// task has a schema.
type Result struct {
	Text       string   `json:"text"`
	Value      any      `json:"value,omitempty"`
	Plan       []string `json:"plan,omitempty"`
	Iterations int      `json:"iterations"`
	Approved   bool     `json:"approved"`
	Feedback   string   `json:"feedback,omitempty"`
	SessionID  string   `json:"sessionId,omitempty"`
}

// Verdict is a reviewer's vote.
type Verdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// Runner executes tasks through an llm.Invoker.
type Runner struct {
	invoker       llm.Invoker
	audit         AuditStore
	logger        *slog.Logger
	tracer        trace.Tracer
	maxIterations int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithAuditStore records every step of review sessions.
func WithAuditStore(store AuditStore) RunnerOption {
	return func(r *Runner) { r.audit = store }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxIterations sets the budget used by DoTask in deep mode.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// NewRunner creates a runner.
func NewRunner(invoker llm.Invoker, opts ...RunnerOption) *Runner {
	r := &Runner{
		invoker:       invoker,
		logger:        slog.Default(),
		tracer:        telemetry.Tracer(telemetry.ScopeReview),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DoTask answers with one model call in fast mode and runs the review loop
// with the runner's default budget in deep mode.
func (r *Runner) DoTask(ctx context.Context, task Task) (Result, error) {
	if task.Mode == agent.ModeDeep {
		return r.DoTaskWithReview(ctx, task, r.maxIterations)
	}
	return r.fast(ctx, task)
}

func (r *Runner) fast(ctx context.Context, task Task) (Result, error) {
	text, err := r.call(ctx, task, r.taskPrompt(task))
	if err != nil {
		return Result{}, err
	}
	res := Result{Text: text}
	if task.Schema != nil {
		value, err := r.conform(task, text)
		if err != nil {
			return res, err
		}
		res.Value = value
	}
	return res, nil
}

// DoTaskWithReview produces a first answer, asks for a plan, then refines
// and reviews up to maxIterations times. Running out of iterations is not
// an error: the last candidate is returned with Approved false. A task in
// fast mode skips the loop.
func (r *Runner) DoTaskWithReview(ctx context.Context, task Task, maxIterations int) (Result, error) {
	if task.Mode == agent.ModeFast {
		return r.fast(ctx, task)
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	sessionID := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "review.DoTaskWithReview",
		trace.WithAttributes(telemetry.ReviewAttributes(sessionID, 0, maxIterations, false)...))
	defer span.End()

	res, err := r.loop(ctx, task, sessionID, maxIterations)
	span.SetAttributes(telemetry.ReviewAttributes(sessionID, res.Iterations, maxIterations, res.Approved)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (r *Runner) loop(ctx context.Context, task Task, sessionID string, maxIterations int) (Result, error) {
	res := Result{SessionID: sessionID}

	current, err := r.call(ctx, task, r.taskPrompt(task))
	if err != nil {
		return res, err
	}
	res.Text = current
	r.record(ctx, AuditEvent{SessionID: sessionID, Stage: StageFirstPass, Content: current})

	planReply, err := r.call(ctx, task, r.planPrompt(task, current))
	if err != nil {
		return res, err
	}
	res.Plan = ParsePlan(planReply)
	r.record(ctx, AuditEvent{SessionID: sessionID, Stage: StagePlan, Content: res.Plan})

	feedback := ""
	for i := 1; i <= maxIterations; i++ {
		candidate, err := r.call(ctx, task, r.refinePrompt(task, res.Plan, current, feedback, i, maxIterations))
		if err != nil {
			return res, err
		}
		current = candidate
		res.Text = candidate
		res.Iterations = i
		r.record(ctx, AuditEvent{SessionID: sessionID, Stage: StageCandidate, Iteration: i, Content: candidate})

		verdict, err := r.review(ctx, task, candidate, i, maxIterations)
		if err != nil {
			return res, err
		}
		telemetry.Metrics().RecordReviewIteration(ctx, verdict.Approved)
		r.record(ctx, AuditEvent{SessionID: sessionID, Stage: StageReview, Iteration: i, Approved: verdict.Approved, Content: verdict.Feedback})

		res.Feedback = verdict.Feedback
		if verdict.Approved {
			res.Approved = true
			break
		}
		r.logger.DebugContext(ctx, "review.iteration.rejected",
			slog.String("session", sessionID),
			slog.Int("iteration", i),
			slog.String("feedback", verdict.Feedback))
		feedback = verdict.Feedback
	}

	if task.Schema != nil {
		value, err := r.conform(task, res.Text)
		switch {
		case err == nil:
			res.Value = value
		case res.Approved:
			return res, err
		default:
			// Budget spent on a non-conforming candidate: return it unvalued.
			r.logger.WarnContext(ctx, "review.exhausted.nonconforming",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// review asks for a verdict on candidate. Candidates that do not satisfy
// the task schema are rejected without a model call. A reply that cannot
// be parsed counts as a rejection carrying the raw reply as feedback.
func (r *Runner) review(ctx context.Context, task Task, candidate string, iteration, maxIterations int) (Verdict, error) {
	if task.Schema != nil {
		if _, err := r.conform(task, candidate); err != nil {
			return Verdict{Feedback: "The answer must be JSON matching the schema: " + err.Error()}, nil
		}
	}
	reply, err := r.call(ctx, task, r.reviewPrompt(task, candidate, iteration, maxIterations))
	if err != nil {
		return Verdict{}, err
	}
	var v Verdict
	if err := llm.DecodeJSONReply(reply, &v); err != nil {
		return Verdict{Feedback: strings.TrimSpace(reply)}, nil
	}
	return v, nil
}

func (r *Runner) call(ctx context.Context, task Task, history []llm.Message) (string, error) {
	opts := task.Options
	if opts.Mode == "" {
		opts.Mode = string(task.Mode)
	}
	return r.invoker.Invoke(ctx, task.Provider, history, opts)
}

// conform decodes text as JSON and validates it against the task schema.
func (r *Runner) conform(task Task, text string) (any, error) {
	var value any
	if err := llm.DecodeJSONReply(text, &value); err != nil {
		return nil, err
	}
	resolved, err := task.Schema.Resolve(nil)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid output schema", err)
	}
	if err := resolved.Validate(value); err != nil {
		return nil, errors.New(errors.CodeMalformedReply, "reply does not match the output schema", err)
	}
	return value, nil
}

func (r *Runner) record(ctx context.Context, event AuditEvent) {
	if r.audit == nil {
		return
	}
	event.At = time.Now()
	if err := r.audit.Record(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "review.audit.failed",
			slog.String("session", event.SessionID),
			slog.String("stage", event.Stage),
			slog.String("error", err.Error()))
	}
}

func (r *Runner) schemaText(task Task) string {
	if task.Schema == nil {
		return ""
	}
	raw, err := json.Marshal(task.Schema)
	if err != nil {
		return ""
	}
	return "\nRespond with JSON only, matching this schema:\n" + string(raw)
}

func withHistory(task Task, prompt string) []llm.Message {
	out := make([]llm.Message, 0, len(task.History)+1)
	out = append(out, task.History...)
	return append(out, llm.User(prompt))
}

func (r *Runner) taskPrompt(task Task) []llm.Message {
	return withHistory(task, "Task:\n"+task.Description+r.schemaText(task))
}

func (r *Runner) planPrompt(task Task, draft string) []llm.Message {
	return withHistory(task, "Task:\n"+task.Description+
		"\n\nDraft answer:\n"+draft+
		"\n\nWrite a concise step-by-step plan to produce the best possible answer. "+
		"Respond with a JSON array of short strings.")
}

func (r *Runner) refinePrompt(task Task, plan []string, current, feedback string, iteration, maxIterations int) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d of %d.\nTask:\n%s\n\nPlan:\n", iteration, maxIterations, task.Description)
	for i, step := range plan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	fmt.Fprintf(&b, "\nCurrent answer:\n%s\n", current)
	if feedback != "" {
		fmt.Fprintf(&b, "\nReviewer feedback:\n%s\n", feedback)
	}
	b.WriteString("\nFollow the plan and produce an improved final answer. Reply with the answer only.")
	b.WriteString(r.schemaText(task))
	return withHistory(task, b.String())
}

func (r *Runner) reviewPrompt(task Task, candidate string, iteration, maxIterations int) []llm.Message {
	return []llm.Message{
		llm.System("You are a strict reviewer. Respond with strict JSON only: " +
			`{"approved": true|false, "feedback": "<what to fix>"}.`),
		llm.User(fmt.Sprintf("Review of iteration %d of %d.\nTask:\n%s\n\nCandidate answer:\n%s",
			iteration, maxIterations, task.Description, candidate)),
	}
}

// ParsePlan reads a plan reply as a JSON list of strings, a {"plan": [...]}
// object, or failing both, non-empty lines with list markers removed. Steps
// decoded from JSON are kept as written.
func ParsePlan(reply string) []string {
	var steps []string
	if err := llm.DecodeJSONReply(reply, &steps); err == nil && len(steps) > 0 {
		return trimSteps(steps)
	}
	var wrapped struct {
		Plan []string `json:"plan"`
	}
	if err := llm.DecodeJSONReply(reply, &wrapped); err == nil && len(wrapped.Plan) > 0 {
		return trimSteps(wrapped.Plan)
	}
	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			lines[i] = ""
			continue
		}
		lines[i] = listMarker.ReplaceAllString(line, "")
	}
	return trimSteps(lines)
}

// listMarker matches a leading bullet or "1." / "1)" enumeration.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

func trimSteps(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
