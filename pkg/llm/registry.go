// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"sort"
	"strings"
	"sync"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

// Record is a registered provider.
type Record struct {
	Key      string
	Handler  Handler
	Metadata map[string]any
}

// Registry maps lower-cased provider keys to handlers. Registration is
// expected to complete before concurrent lookups start.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// NormalizeKey trims and lower-cases a provider key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Register adds a provider. Re-registering a key fails; call Reset first.
func (r *Registry) Register(rec Record) error {
	key := NormalizeKey(rec.Key)
	if key == "" {
		return errors.Validation("provider key is required")
	}
	if rec.Handler == nil {
		return errors.Validation("provider %q has no callLLM handler", key)
	}
	if fn, ok := rec.Handler.(HandlerFunc); ok && fn == nil {
		return errors.Validation("provider %q has no callLLM handler", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[key]; exists {
		return errors.Validation("provider %q is already registered", key).
			WithContext("provider", key)
	}
	rec.Key = key
	r.records[key] = rec
	return nil
}

// Ensure returns the provider registered under key.
func (r *Registry) Ensure(key string) (Record, error) {
	norm := NormalizeKey(key)
	r.mu.RLock()
	rec, ok := r.records[norm]
	r.mu.RUnlock()
	if !ok {
		return Record{}, errors.NotFound("provider", norm)
	}
	return rec, nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[NormalizeKey(key)]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]Record)
}
