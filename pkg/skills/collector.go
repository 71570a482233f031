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

// CollectState is the state of argument collection.
type CollectState int

const (
	Collecting CollectState = iota
	CollectComplete
	CollectCancelled
)

func (s CollectState) String() string {
	switch s {
	case CollectComplete:
		return "complete"
	case CollectCancelled:
		return "cancelled"
	default:
		return "collecting"
	}
}

var (
	cancelWords  = map[string]bool{"cancel": true, "stop": true, "abort": true, "quit": true, "exit": true, "renunta": true}
	emailPattern = regexp.MustCompile(`(?i)email`)
)

// keyword folds a reply for keyword comparison.
func keyword(line string) string {
	line = strings.ToLower(strings.TrimSpace(line))
	return strings.Join(strings.FieldsFunc(line, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}), " ")
}

// Collector gathers missing arguments turn by turn. Prompt renders the next
// question and Handle consumes one line of input.
type Collector struct {
	ec        *ExecutionContext
	extractor Extractor
	threshold float64
	logger    *slog.Logger

	state         CollectState
	optionalShown bool
	warnings      []string
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithExtractor enables model-assisted extraction.
func WithExtractor(e Extractor) CollectorOption {
	return func(c *Collector) { c.extractor = e }
}

// WithOptionThreshold overrides the fuzzy option threshold.
func WithOptionThreshold(t float64) CollectorOption {
	return func(c *Collector) {
		if t > 0 {
			c.threshold = t
		}
	}
}

// WithCollectorLogger sets the logger used for warnings.
func WithCollectorLogger(l *slog.Logger) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCollector creates a collector over ec.
func NewCollector(ec *ExecutionContext, opts ...CollectorOption) *Collector {
	c := &Collector{
		ec:        ec,
		threshold: DefaultOptionThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if ec.Complete() {
		c.state = CollectComplete
	}
	return c
}

// State returns the current state.
func (c *Collector) State() CollectState { return c.state }

// Warnings returns and clears warnings raised since the last call.
func (c *Collector) Warnings() []string {
	w := c.warnings
	c.warnings = nil
	return w
}

func (c *Collector) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.warnings = append(c.warnings, msg)
	c.logger.Warn("skill.collect.warning",
		slog.String("skill", c.ec.Skill.Name),
		slog.String("warning", msg))
}

// Prompt renders the question for the next turn. Missing optional arguments
// are listed the first time only.
func (c *Collector) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Missing required arguments for %s:\n", c.ec.Skill.Name)
	for _, name := range c.ec.MissingRequired() {
		writeArgumentLine(&b, c.ec.Skill, name)
	}
	if optional := c.ec.MissingOptional(); len(optional) > 0 && !c.optionalShown {
		c.optionalShown = true
		b.WriteString("Optional arguments:\n")
		for _, name := range optional {
			writeArgumentLine(&b, c.ec.Skill, name)
		}
	}
	b.WriteString("Reply with 'name value' pairs, or 'cancel' to stop: ")
	return b.String()
}

func writeArgumentLine(b *strings.Builder, skill *Skill, name string) {
	arg, _ := skill.Argument(name)
	line := "  - " + name
	if arg.Description != "" {
		line += ": " + arg.Description
	}
	if opts := arg.Kind.Options(); len(opts) > 0 {
		labels := make([]string, 0, len(opts))
		for _, o := range opts {
			labels = append(labels, fmt.Sprint(o.Value))
		}
		line += " (one of: " + strings.Join(labels, ", ") + ")"
	}
	b.WriteString(line + "\n")
}

// Handle applies one line of input. It returns a USER_CANCELLED error when
// the line is a cancel keyword.
func (c *Collector) Handle(ctx context.Context, line string) (CollectState, error) {
	if c.state != Collecting {
		return c.state, nil
	}
	if c.ec.Complete() {
		c.state = CollectComplete
		return c.state, nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return c.state, nil
	}
	if cancelWords[keyword(line)] {
		c.state = CollectCancelled
		return c.state, errors.UserCancelled("argument collection").
			WithContext("skill", c.ec.Skill.Name)
	}

	start := len(c.ec.MissingRequired())
	layers := []func(context.Context, string, *ParseResult){
		c.applyNamed,
		c.assignTokens,
		c.matchOptions,
	}
	var parsed ParseResult
	for _, layer := range layers {
		layer(ctx, line, &parsed)
		if c.ec.Complete() {
			c.state = CollectComplete
			return c.state, nil
		}
	}
	if len(c.ec.MissingRequired()) == start {
		if err := c.extract(ctx, line); err != nil {
			return c.state, err
		}
	}
	if c.ec.Complete() {
		c.state = CollectComplete
	}
	return c.state, nil
}

// applyNamed recognizes explicit "name value" pairs.
func (c *Collector) applyNamed(_ context.Context, line string, parsed *ParseResult) {
	*parsed = c.ec.ParseNamedArguments(line, c.ec.candidateNames())
	for _, name := range c.ec.Skill.ArgumentNames() {
		if v, ok := parsed.Resolved[name]; ok {
			c.ec.Args[name] = v
		}
	}
	for _, name := range parsed.Invalid {
		c.warn("invalid value for %s", name)
	}
	for _, key := range parsed.Unknown {
		c.warn("unknown argument %s", key)
	}
}

// assignTokens fills missing arguments from unlabeled tokens, left to right.
// A token whose value is rejected is dropped rather than tried elsewhere.
func (c *Collector) assignTokens(_ context.Context, _ string, parsed *ParseResult) {
	if c.ec.Skill.DisableTokenAssignment {
		return
	}
	names := make(map[string]bool)
	for _, n := range c.ec.candidateNames() {
		names[normalizeName(n)] = true
	}
	for i, tok := range parsed.Tokens {
		if parsed.Consumed[i] || names[normalizeName(tok)] || strings.TrimSpace(tok) == "" {
			continue
		}
		target := c.tokenTarget(tok)
		if target == "" {
			return
		}
		if err := c.ec.Set(target, tok); err != nil {
			c.logger.Debug("skill.collect.token_rejected",
				slog.String("skill", c.ec.Skill.Name),
				slog.String("argument", target))
		}
		if c.ec.Complete() {
			return
		}
	}
}

func (c *Collector) tokenTarget(tok string) string {
	pending := append(c.ec.MissingRequired(), c.ec.MissingOptional()...)
	if len(pending) == 0 {
		return ""
	}
	if strings.Contains(tok, "@") {
		for _, name := range pending {
			arg, _ := c.ec.Skill.Argument(name)
			if emailPattern.MatchString(name) || emailPattern.MatchString(arg.Description) {
				return name
			}
		}
	}
	return pending[0]
}

// matchOptions fuzzily matches the whole line against enumerated arguments.
func (c *Collector) matchOptions(_ context.Context, line string, _ *ParseResult) {
	for _, name := range c.ec.MissingRequired() {
		arg, _ := c.ec.Skill.Argument(name)
		if arg.Kind.Tag != KindEnumerator {
			continue
		}
		opt, score, ok := MatchOption(line, arg.Kind.Options(), c.threshold)
		if !ok {
			continue
		}
		if err := c.ec.Set(name, opt.Value); err != nil {
			continue
		}
		c.logger.Debug("skill.collect.option_matched",
			slog.String("skill", c.ec.Skill.Name),
			slog.String("argument", name),
			slog.Float64("score", score))
	}
}

// extract asks the model for the still-pending required arguments.
func (c *Collector) extract(ctx context.Context, line string) error {
	if c.extractor == nil {
		return nil
	}
	pending := make([]Argument, 0)
	for _, name := range c.ec.MissingRequired() {
		arg, _ := c.ec.Skill.Argument(name)
		pending = append(pending, arg)
	}
	values, err := c.extractor.Extract(ctx, c.ec.Skill, pending, line)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.warn("could not extract arguments: %v", err)
		return nil
	}
	var unresolved []string
	for _, arg := range pending {
		v, ok := values[arg.Name]
		if !ok || v == nil {
			unresolved = append(unresolved, arg.Name)
			continue
		}
		if err := c.ec.Set(arg.Name, v); err != nil {
			unresolved = append(unresolved, arg.Name)
		}
	}
	if len(unresolved) > 0 {
		c.warn("could not determine %s", strings.Join(unresolved, ", "))
	}
	return nil
}

// Run drives the collector with p until it completes or is cancelled.
// It returns immediately when nothing is missing.
func (c *Collector) Run(ctx context.Context, p prompt.Prompter) error {
	for {
		if c.state == CollectComplete || c.ec.Complete() {
			c.state = CollectComplete
			return nil
		}
		line, err := p.Ask(ctx, c.Prompt())
		if err != nil {
			return fmt.Errorf("read arguments: %w", err)
		}
		_, err = c.Handle(ctx, line)
		for _, w := range c.Warnings() {
			p.Notify(ctx, "Warning: "+w)
		}
		if err != nil {
			return err
		}
	}
}

// Reopen resumes collection after an edit left required arguments unset.
func (c *Collector) Reopen() {
	if !c.ec.Complete() {
		c.state = Collecting
	}
}
