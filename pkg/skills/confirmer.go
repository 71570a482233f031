// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/prompt"
)

// ConfirmState is the state of the confirmation loop.
type ConfirmState int

const (
	AwaitingResponse ConfirmState = iota
	Confirmed
	ConfirmCancelled
	NeedsCollection
)

func (s ConfirmState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case ConfirmCancelled:
		return "cancelled"
	case NeedsCollection:
		return "needs_collection"
	default:
		return "awaiting_response"
	}
}

// Guidance is shown when a reply cannot be interpreted.
const Guidance = "respond with 'OK', 'edit', or 'cancel'."

const maskedValue = "********"

var (
	sensitiveName = regexp.MustCompile(`(?i)password|secret|token|key`)

	quickCancel  = map[string]bool{"cancel": true, "stop": true, "abort": true, "quit": true, "exit": true, "renunta": true, "no": true}
	quickConfirm = map[string]bool{
		"ok": true, "okay": true, "yes": true, "y": true, "sure": true, "proceed": true,
		"continue": true, "go ahead": true, "da": true, "confirm": true, "confirmed": true,
	}
)

// FormatValue renders one summary value, masking sensitive argument names.
func FormatValue(name string, value any, set bool) string {
	switch {
	case sensitiveName.MatchString(name):
		return maskedValue
	case !set:
		return "(not provided)"
	}
	if s, ok := value.(string); ok && s == "" {
		return "(empty string)"
	}
	return fmt.Sprint(value)
}

// Confirmer asks the user to approve the resolved arguments before the
// skill runs. Edits are applied in place on the execution context.
type Confirmer struct {
	ec         *ExecutionContext
	classifier Classifier
	logger     *slog.Logger

	state         ConfirmState
	manualUpdates bool
	notices       []string
}

// ConfirmerOption configures a Confirmer.
type ConfirmerOption func(*Confirmer)

// WithClassifier enables model classification of free-form replies.
func WithClassifier(c Classifier) ConfirmerOption {
	return func(cf *Confirmer) { cf.classifier = c }
}

// WithConfirmerLogger sets the logger.
func WithConfirmerLogger(l *slog.Logger) ConfirmerOption {
	return func(cf *Confirmer) {
		if l != nil {
			cf.logger = l
		}
	}
}

// NewConfirmer creates a confirmer over ec.
func NewConfirmer(ec *ExecutionContext, opts ...ConfirmerOption) *Confirmer {
	c := &Confirmer{ec: ec, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Confirmer) State() ConfirmState { return c.state }

// Notices returns and clears messages for the user raised since the last call.
func (c *Confirmer) Notices() []string {
	n := c.notices
	c.notices = nil
	return n
}

func (c *Confirmer) notify(msg string) {
	c.notices = append(c.notices, msg)
}

// Summary renders the heading and one line per declared argument.
func (c *Confirmer) Summary() string {
	var b strings.Builder
	b.WriteString("Ready to run: " + c.ec.Skill.Title() + "\n")
	for _, arg := range c.ec.Skill.Arguments {
		v, set := c.ec.Args[arg.Name]
		fmt.Fprintf(&b, "  %s: %s\n", arg.Name, FormatValue(arg.Name, v, set && v != nil))
	}
	return b.String()
}

// Prompt renders the question for the next turn.
func (c *Confirmer) Prompt() string {
	if c.manualUpdates {
		return "Enter the changes as 'name value' pairs: "
	}
	return c.Summary() + "Proceed? (OK / edit / cancel): "
}

// Handle applies one reply. It returns a USER_CANCELLED error on cancel.
func (c *Confirmer) Handle(ctx context.Context, line string) (ConfirmState, error) {
	if c.state == Confirmed || c.state == ConfirmCancelled {
		return c.state, nil
	}
	c.state = AwaitingResponse
	line = strings.TrimSpace(line)
	if line == "" {
		return c.state, nil
	}

	word := keyword(line)
	switch {
	case quickCancel[word]:
		c.manualUpdates = false
		return c.cancel()
	case quickConfirm[word]:
		c.manualUpdates = false
		c.state = Confirmed
		return c.state, nil
	}

	if c.manualUpdates {
		c.manualUpdates = false
		if !c.applyNamed(line) {
			c.notify("No changes recognized; " + Guidance)
			return c.state, nil
		}
		return c.afterEdit(), nil
	}

	if c.applyNamed(line) {
		return c.afterEdit(), nil
	}
	if word == ActionEdit {
		c.manualUpdates = true
		return c.state, nil
	}
	if c.classifier == nil {
		c.notify(Guidance)
		return c.state, nil
	}

	decision, err := c.classifier.Classify(ctx, c.ec.Skill, c.Summary(), line)
	if err != nil {
		if ctx.Err() != nil {
			return c.state, err
		}
		c.logger.Warn("skill.confirm.classify_failed",
			slog.String("skill", c.ec.Skill.Name),
			slog.String("error", err.Error()))
		c.notify(Guidance)
		return c.state, nil
	}
	switch decision.Action {
	case ActionConfirm:
		c.state = Confirmed
	case ActionCancel:
		return c.cancel()
	case ActionEdit:
		if len(decision.Updates) == 0 {
			c.manualUpdates = true
			return c.state, nil
		}
		c.applyUpdates(decision.Updates)
		return c.afterEdit(), nil
	default:
		c.notify(Guidance)
	}
	return c.state, nil
}

func (c *Confirmer) cancel() (ConfirmState, error) {
	c.state = ConfirmCancelled
	return c.state, errors.UserCancelled("confirmation").
		WithContext("skill", c.ec.Skill.Name)
}

// applyNamed parses "name value" edits. It reports whether anything changed.
func (c *Confirmer) applyNamed(line string) bool {
	res := c.ec.ParseNamedArguments(line, c.ec.ParseableArgumentNames())
	for _, name := range res.Invalid {
		c.notify("Warning: invalid value for " + name)
	}
	changed := false
	for _, name := range c.ec.Skill.ArgumentNames() {
		if v, ok := res.Resolved[name]; ok {
			c.ec.Args[name] = v
			changed = true
		}
	}
	return changed
}

func (c *Confirmer) applyUpdates(updates map[string]any) {
	for _, name := range c.ec.Skill.ArgumentNames() {
		raw, ok := updates[name]
		if !ok {
			continue
		}
		if raw == nil {
			delete(c.ec.Args, name)
			continue
		}
		if err := c.ec.Set(name, raw); err != nil {
			c.notify("Warning: invalid value for " + name)
		}
	}
}

func (c *Confirmer) afterEdit() ConfirmState {
	if c.ec.Complete() {
		c.state = AwaitingResponse
	} else {
		c.state = NeedsCollection
	}
	return c.state
}

// Run drives the confirmer with p until a terminal state or NeedsCollection.
func (c *Confirmer) Run(ctx context.Context, p prompt.Prompter) (ConfirmState, error) {
	c.state = AwaitingResponse
	for {
		line, err := p.Ask(ctx, c.Prompt())
		if err != nil {
			return c.state, fmt.Errorf("read confirmation: %w", err)
		}
		state, err := c.Handle(ctx, line)
		for _, n := range c.Notices() {
			p.Notify(ctx, n)
		}
		if err != nil || state != AwaitingResponse {
			return state, err
		}
	}
}
