// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills implements the skill catalog and the interactive engine that
// resolves, confirms and executes a skill from free-form user input.
package skills

import (
	"context"
	"sort"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// Literal argument types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeAny     = "any"
)

const (
	validatorSigil  = "@"
	enumeratorSigil = "%"
)

// ValidatorFunc checks a raw value and returns its normalized form.
type ValidatorFunc func(raw any) (value any, ok bool)

// Option is one permitted value of an enumerated argument.
type Option struct {
	Value       any    `json:"value" yaml:"value"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// EnumeratorFunc lists the permitted options of an argument.
type EnumeratorFunc func() []Option

// ActionFunc executes a skill with fully resolved arguments.
type ActionFunc func(ctx context.Context, args map[string]any) (any, error)

// KindTag discriminates ArgumentKind.
type KindTag int

const (
	KindLiteral KindTag = iota
	KindValidator
	KindEnumerator
)

// ArgumentKind is how an argument value is checked: a literal type, a
// validator or an enumerator. Exactly one variant is populated.
type ArgumentKind struct {
	Tag        KindTag
	Type       string
	Helper     string
	Validator  ValidatorFunc
	Enumerator EnumeratorFunc
}

// Literal returns a literal kind such as "string" or "boolean".
func Literal(typ string) ArgumentKind {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		typ = TypeString
	}
	return ArgumentKind{Tag: KindLiteral, Type: typ}
}

// Validated returns a validator kind.
func Validated(name string, fn ValidatorFunc) ArgumentKind {
	return ArgumentKind{Tag: KindValidator, Helper: name, Validator: fn}
}

// Enumerated returns an enumerator kind.
func Enumerated(name string, fn EnumeratorFunc) ArgumentKind {
	return ArgumentKind{Tag: KindEnumerator, Helper: name, Enumerator: fn}
}

// String renders the kind the way it is declared.
func (k ArgumentKind) String() string {
	switch k.Tag {
	case KindValidator:
		return validatorSigil + k.Helper
	case KindEnumerator:
		return enumeratorSigil + k.Helper
	default:
		return k.Type
	}
}

// Options returns the enumerator's options, or nil for other kinds.
func (k ArgumentKind) Options() []Option {
	if k.Tag != KindEnumerator || k.Enumerator == nil {
		return nil
	}
	return k.Enumerator()
}

// ArgumentSpec declares an argument at registration time. Type is a literal
// type name, "@helper" for a validator or "%helper" for an enumerator.
type ArgumentSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
}

// Argument is a resolved argument definition.
type Argument struct {
	Name        string
	Description string
	Required    bool
	Kind        ArgumentKind
}

// Spec is the registration input of a skill.
type Spec struct {
	Name                   string
	Description            string
	Why                    string
	What                   string
	Arguments              []ArgumentSpec
	RequiredArguments      []string
	Roles                  []string
	NeedConfirmation       bool
	DisableTokenAssignment bool
	Action                 ActionFunc
	Validators             map[string]ValidatorFunc
	Enumerators            map[string]EnumeratorFunc
}

// Skill is an immutable registered skill.
type Skill struct {
	Name                   string
	Description            string
	Why                    string
	What                   string
	Arguments              []Argument
	NeedConfirmation       bool
	DisableTokenAssignment bool
	Action                 ActionFunc

	roles map[string]struct{}
	index map[string]int
}

func newSkill(spec Spec) (*Skill, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.Validation("skill name is required")
	}
	if spec.Action == nil {
		return nil, errors.Validation("skill %q has no action", name)
	}

	s := &Skill{
		Name:                   name,
		Description:            strings.TrimSpace(spec.Description),
		Why:                    strings.TrimSpace(spec.Why),
		What:                   strings.TrimSpace(spec.What),
		NeedConfirmation:       spec.NeedConfirmation,
		DisableTokenAssignment: spec.DisableTokenAssignment,
		Action:                 spec.Action,
		roles:                  make(map[string]struct{}),
		index:                  make(map[string]int),
	}

	for _, as := range spec.Arguments {
		argName := strings.TrimSpace(as.Name)
		if argName == "" {
			return nil, errors.Validation("skill %q declares an argument without a name", name)
		}
		if _, dup := s.index[argName]; dup {
			return nil, errors.Validation("skill %q declares argument %q twice", name, argName)
		}
		kind, err := resolveKind(name, argName, as.Type, spec)
		if err != nil {
			return nil, err
		}
		s.index[argName] = len(s.Arguments)
		s.Arguments = append(s.Arguments, Argument{
			Name:        argName,
			Description: strings.TrimSpace(as.Description),
			Required:    as.Required,
			Kind:        kind,
		})
	}
	for _, req := range spec.RequiredArguments {
		i, ok := s.index[strings.TrimSpace(req)]
		if !ok {
			return nil, errors.Validation("skill %q requires unknown argument %q", name, req)
		}
		s.Arguments[i].Required = true
	}
	for _, role := range spec.Roles {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			s.roles[role] = struct{}{}
		}
	}
	return s, nil
}

func resolveKind(skill, arg, typ string, spec Spec) (ArgumentKind, error) {
	typ = strings.TrimSpace(typ)
	switch {
	case strings.HasPrefix(typ, validatorSigil):
		helper := strings.TrimPrefix(typ, validatorSigil)
		fn, ok := spec.Validators[helper]
		if !ok || fn == nil {
			return ArgumentKind{}, errors.Validation("skill %q argument %q references missing validator %q", skill, arg, helper)
		}
		return Validated(helper, fn), nil
	case strings.HasPrefix(typ, enumeratorSigil):
		helper := strings.TrimPrefix(typ, enumeratorSigil)
		fn, ok := spec.Enumerators[helper]
		if !ok || fn == nil {
			return ArgumentKind{}, errors.Validation("skill %q argument %q references missing enumerator %q", skill, arg, helper)
		}
		return Enumerated(helper, fn), nil
	default:
		return Literal(typ), nil
	}
}

// Argument returns the named argument definition.
func (s *Skill) Argument(name string) (Argument, bool) {
	i, ok := s.index[name]
	if !ok {
		return Argument{}, false
	}
	return s.Arguments[i], true
}

// ArgumentNames returns argument names in declaration order.
func (s *Skill) ArgumentNames() []string {
	names := make([]string, len(s.Arguments))
	for i, a := range s.Arguments {
		names[i] = a.Name
	}
	return names
}

// Roles returns the sorted role set. Empty means unrestricted.
func (s *Skill) Roles() []string {
	out := make([]string, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// AllowsRole reports whether role may use the skill.
func (s *Skill) AllowsRole(role string) bool {
	if len(s.roles) == 0 {
		return true
	}
	_, ok := s.roles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// Title is the human heading of the skill.
func (s *Skill) Title() string {
	if s.Description != "" && s.Description != s.Name {
		return s.Description
	}
	return s.Name
}

// searchText is what the ranking index sees for the skill.
func (s *Skill) searchText() string {
	parts := []string{s.Name, s.What, s.Description, s.Why}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
