// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package operators holds named callables that a model selects by
// confidence for a task description.
package operators

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

var namePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9-]*$`)

// Func executes an operator.
type Func func(ctx context.Context, params map[string]any) (any, error)

// Operator is a registered callable.
type Operator struct {
	Name        string
	Description string
	Execute     Func
}

// Registry stores operators by name.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operator)}
}

// Register adds an operator. Names must match ^[a-z][a-zA-Z0-9-]*$ and be unique.
func (r *Registry) Register(name, description string, fn Func) error {
	if !namePattern.MatchString(name) {
		return errors.Validation("operator name %q must match %s", name, namePattern.String())
	}
	if fn == nil {
		return errors.Validation("operator %q has no function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[name]; exists {
		return errors.Validation("operator %q is already registered", name)
	}
	r.ops[name] = Operator{Name: name, Description: description, Execute: fn}
	return nil
}

// Get returns the named operator.
func (r *Registry) Get(name string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	if !ok {
		return Operator{}, errors.NotFound("operator", name)
	}
	return op, nil
}

// Call runs the named operator with params.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (any, error) {
	op, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return op.Execute(ctx, params)
}

// List returns the operators sorted by name.
func (r *Registry) List() []Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Operator, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered operators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
