// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent describes the agents a runtime acts for: their role, the
// provider and models they use and the task mode they default to.
package agent

import (
	"sort"
	"strings"
	"sync"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
)

// Mode selects how much effort a task gets.
type Mode string

const (
	// ModeFast answers with a single model call.
	ModeFast Mode = "fast"
	// ModeDeep runs the plan, iterate and review loop.
	ModeDeep Mode = "deep"
)

// ParseMode folds s into a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFast:
		return ModeFast, true
	case ModeDeep:
		return ModeDeep, true
	}
	return "", false
}

// Record is what the runtime knows about one agent.
type Record struct {
	Name        string
	Role        string
	Provider    string
	FastModel   string
	DeepModel   string
	APIKey      string
	BaseURL     string
	DefaultMode Mode
	Temperature float64
	MaxTokens   int
}

// Option configures a Record.
type Option func(*Record) error

// New creates a record with a required name.
func New(name string, opts ...Option) (*Record, error) {
	r := &Record{Name: strings.TrimSpace(name)}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.Name == "" {
		return nil, errors.Validation("agent name is required")
	}
	return r, nil
}

// WithRole sets the agent role used to filter skills.
func WithRole(role string) Option {
	return func(r *Record) error {
		r.Role = strings.ToLower(strings.TrimSpace(role))
		return nil
	}
}

// WithProvider sets the provider key for model calls.
func WithProvider(key string) Option {
	return func(r *Record) error {
		r.Provider = llm.NormalizeKey(key)
		return nil
	}
}

// WithModels sets the models used in fast and deep mode.
func WithModels(fast, deep string) Option {
	return func(r *Record) error {
		r.FastModel = strings.TrimSpace(fast)
		r.DeepModel = strings.TrimSpace(deep)
		return nil
	}
}

// WithCredentials sets the API key and an optional base URL override.
func WithCredentials(apiKey, baseURL string) Option {
	return func(r *Record) error {
		r.APIKey = apiKey
		r.BaseURL = baseURL
		return nil
	}
}

// WithDefaultMode sets the mode used when a task does not ask for one.
func WithDefaultMode(mode string) Option {
	return func(r *Record) error {
		m, ok := ParseMode(mode)
		if !ok {
			return errors.Validation("unknown task mode %q", mode)
		}
		r.DefaultMode = m
		return nil
	}
}

// Model returns the model for mode, falling back to the other mode's model.
func (r *Record) Model(mode Mode) string {
	if mode == ModeDeep && r.DeepModel != "" {
		return r.DeepModel
	}
	if r.FastModel != "" {
		return r.FastModel
	}
	return r.DeepModel
}

// CallOptions builds provider call options for mode.
func (r *Record) CallOptions(mode Mode) llm.CallOptions {
	return llm.CallOptions{
		Model:       r.Model(mode),
		APIKey:      r.APIKey,
		BaseURL:     r.BaseURL,
		Mode:        string(mode),
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// NormalizeTaskMode picks the effective mode. An explicit override wins,
// then the requested mode, then the agent default, then fallback. Deep
// mode degrades to fast when the agent has only a fast model.
func NormalizeTaskMode(mode, override string, rec *Record, fallback Mode) Mode {
	chosen, ok := ParseMode(override)
	if !ok {
		chosen, ok = ParseMode(mode)
	}
	if !ok && rec != nil && rec.DefaultMode != "" {
		chosen, ok = rec.DefaultMode, true
	}
	if !ok {
		chosen, ok = ParseMode(string(fallback))
	}
	if !ok {
		chosen = ModeFast
	}
	if chosen == ModeDeep && rec != nil && rec.DeepModel == "" && rec.FastModel != "" {
		return ModeFast
	}
	return chosen
}

// Directory resolves agents by name.
type Directory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{records: make(map[string]*Record)}
}

// Register adds rec. Names are unique.
func (d *Directory) Register(rec *Record) error {
	if rec == nil || rec.Name == "" {
		return errors.Validation("agent name is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.records[rec.Name]; exists {
		return errors.Validation("agent %q is already registered", rec.Name)
	}
	d.records[rec.Name] = rec
	return nil
}

// Get returns the named agent.
func (d *Directory) Get(name string) (*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[strings.TrimSpace(name)]
	if !ok {
		return nil, errors.NotFound("agent", name)
	}
	return rec, nil
}

// Names returns the registered names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.records))
	for n := range d.records {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
