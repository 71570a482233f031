// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// ExecutionContext holds the arguments gathered during one skill invocation.
// Args only ever contains values accepted by the argument's kind.
type ExecutionContext struct {
	Skill           *Skill
	Args            map[string]any
	TaskDescription string
}

// NewExecutionContext starts an empty context for skill.
func NewExecutionContext(skill *Skill) *ExecutionContext {
	return &ExecutionContext{Skill: skill, Args: make(map[string]any)}
}

// MissingRequired lists unset required arguments in declaration order.
func (ec *ExecutionContext) MissingRequired() []string {
	return ec.missing(true)
}

// MissingOptional lists unset optional arguments in declaration order.
func (ec *ExecutionContext) MissingOptional() []string {
	return ec.missing(false)
}

func (ec *ExecutionContext) missing(required bool) []string {
	var out []string
	for _, a := range ec.Skill.Arguments {
		if a.Required == required && !ec.Has(a.Name) {
			out = append(out, a.Name)
		}
	}
	return out
}

// Complete reports whether every required argument is set.
func (ec *ExecutionContext) Complete() bool {
	return len(ec.MissingRequired()) == 0
}

// AllArgumentNames returns declared names plus any other key already set.
func (ec *ExecutionContext) AllArgumentNames() []string {
	names := ec.Skill.ArgumentNames()
	for k := range ec.Args {
		if _, ok := ec.Skill.Argument(k); !ok {
			names = append(names, k)
		}
	}
	return names
}

// ParseableArgumentNames returns the names eligible for free-text parsing.
func (ec *ExecutionContext) ParseableArgumentNames() []string {
	return ec.Skill.ArgumentNames()
}

// candidateNames picks the name set used by named-argument parsing.
func (ec *ExecutionContext) candidateNames() []string {
	if names := ec.ParseableArgumentNames(); len(names) > 0 {
		return names
	}
	if names := ec.MissingRequired(); len(names) > 0 {
		return names
	}
	return ec.AllArgumentNames()
}

// Has reports whether name holds a value.
func (ec *ExecutionContext) Has(name string) bool {
	v, ok := ec.Args[name]
	return ok && v != nil
}

// Set validates raw for name and stores the normalized value.
func (ec *ExecutionContext) Set(name string, raw any) error {
	value, err := ec.Validate(name, raw)
	if err != nil {
		return err
	}
	ec.Args[name] = value
	return nil
}

// Validate checks raw against the argument's kind and returns the value to store.
func (ec *ExecutionContext) Validate(name string, raw any) (any, error) {
	arg, ok := ec.Skill.Argument(name)
	if !ok {
		return nil, errors.Validation("skill %q has no argument %q", ec.Skill.Name, name)
	}
	if raw == nil {
		return nil, invalidValue(ec.Skill.Name, name, raw)
	}
	switch arg.Kind.Tag {
	case KindEnumerator:
		v, ok := ec.NormalizeOption(arg, raw)
		if !ok {
			return nil, invalidValue(ec.Skill.Name, name, raw)
		}
		return v, nil
	case KindValidator:
		v, ok := arg.Kind.Validator(raw)
		if !ok {
			return nil, invalidValue(ec.Skill.Name, name, raw)
		}
		return v, nil
	default:
		v, ok := ec.CoerceScalar(arg, raw)
		if !ok {
			return nil, invalidValue(ec.Skill.Name, name, raw)
		}
		return v, nil
	}
}

// NormalizeOption maps raw onto one of the argument's options by value or
// label, ignoring case, spacing and punctuation.
func (ec *ExecutionContext) NormalizeOption(arg Argument, raw any) (any, bool) {
	want := compact(fmt.Sprint(raw))
	if want == "" {
		return nil, false
	}
	for _, opt := range arg.Kind.Options() {
		for _, text := range optionTexts(opt) {
			if compact(text) == want {
				return opt.Value, true
			}
		}
	}
	return nil, false
}

// CoerceScalar converts raw to the argument's literal type.
func (ec *ExecutionContext) CoerceScalar(arg Argument, raw any) (any, bool) {
	return coerceLiteral(arg.Kind.Type, raw)
}

// ParseNamedArguments recognizes "name value" pairs in text for the given
// candidate names. Values are validated but not stored.
func (ec *ExecutionContext) ParseNamedArguments(text string, candidates []string) ParseResult {
	return parseNamed(Tokenize(text), candidates, ec.Validate)
}

// Snapshot returns a copy of the current arguments.
func (ec *ExecutionContext) Snapshot() map[string]any {
	out := make(map[string]any, len(ec.Args))
	for k, v := range ec.Args {
		out[k] = v
	}
	return out
}

func invalidValue(skill, name string, raw any) *errors.AgentError {
	return errors.Validation("invalid value %q for argument %q", strings.TrimSpace(fmt.Sprint(raw)), name).
		WithContext("skill", skill).
		WithContext("argument", name)
}
