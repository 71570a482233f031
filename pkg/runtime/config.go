// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"io"
	"sort"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/governance"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/resilience"
	"github.com/skutner/ploinky-sub003/pkg/review"
	"github.com/skutner/ploinky-sub003/pkg/taskqueue"
)

// DefaultAgent is the name of the agent built from the llm section.
const DefaultAgent = "default"

// FromConfig builds a runtime from loaded configuration: providers, the
// default and named agents, the review audit store, the task queue,
// command operators and manifest skills. Extra options are applied after
// the configured ones.
func FromConfig(cfg *config.Config, extra ...Option) (*Runtime, error) {
	opts := []Option{
		WithTransport(llm.NewHTTPTransport(cfg.LLM.Timeout)),
		WithOptionThreshold(cfg.Skills.OptionThreshold),
		WithDisableTokenAssignment(cfg.Skills.DisableTokenAssignment),
		WithSettings(SettingsFromConfig(cfg)),
		WithResilience(PolicyFromConfig(cfg)),
	}
	if len(cfg.Governance.Policies) > 0 {
		opts = append(opts, WithPolicy(governance.RuleSetFromConfig(cfg.Governance)))
	}
	if cfg.Skills.Assistant != "" {
		opts = append(opts, WithModelAssistance(cfg.Skills.Assistant))
	}

	var store *review.SQLiteAuditStore
	if cfg.Review.AuditPath != "" {
		var err error
		if store, err = review.OpenSQLiteAuditStore(cfg.Review.AuditPath); err != nil {
			return nil, err
		}
		opts = append(opts, WithAuditStore(store), withCloser(store))
	}
	if cfg.Queue.Dir != "" {
		q, err := taskqueue.Open(cfg.Queue.Dir, taskqueue.WithPollInterval(cfg.Queue.PollInterval))
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, err
		}
		opts = append(opts, WithQueue(q))
	}

	rt, err := New(append(opts, extra...)...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	if err := registerAgents(rt, cfg); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.RegisterCommands(cfg.Operators.Commands); err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.Skills.Dir != "" {
		if _, err := rt.LoadSkills(cfg.Skills.Dir); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// ApplyConfig updates the live settings after a configuration reload.
func (r *Runtime) ApplyConfig(cfg *config.Config) {
	r.UpdateSettings(SettingsFromConfig(cfg))
	r.logger.Info("runtime.settings.updated")
}

// SettingsFromConfig extracts the live settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	mode, _ := agent.ParseMode(cfg.Review.Mode)
	return Settings{
		OperatorThreshold: cfg.Operators.Threshold,
		ReviewMode:        mode,
		MaxIterations:     cfg.Review.MaxIterations,
		QueueTimeout:      cfg.Queue.Timeout,
	}
}

// PolicyFromConfig maps llm.retry and llm.breaker to a resilience policy.
func PolicyFromConfig(cfg *config.Config) resilience.Policy {
	retry := resilience.DefaultRetryConfig().WithMaxAttempts(cfg.LLM.Retry.MaxAttempts)
	if cfg.LLM.Retry.InitialDelay > 0 {
		retry = retry.WithInitialDelay(cfg.LLM.Retry.InitialDelay)
	}
	if cfg.LLM.Retry.MaxDelay > 0 {
		retry = retry.WithMaxDelay(cfg.LLM.Retry.MaxDelay)
	}
	return resilience.Policy{
		Retry: retry,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.LLM.Breaker.FailureThreshold,
			Cooldown:         cfg.LLM.Breaker.Cooldown,
		},
	}
}

func registerAgents(rt *Runtime, cfg *config.Config) error {
	def, err := newAgent(DefaultAgent, "", cfg.LLM.Provider, cfg.LLM.FastModel, cfg.LLM.DeepModel, cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Mode)
	if err != nil {
		return err
	}
	def.Temperature = cfg.LLM.Temperature
	def.MaxTokens = cfg.LLM.MaxTokens
	if err := rt.RegisterAgent(def); err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a := cfg.Agents[name]
		provider := a.Provider
		if provider == "" {
			provider = cfg.LLM.Provider
		}
		rec, err := newAgent(name, a.Role, provider, a.FastModel, a.DeepModel, a.APIKey, a.BaseURL, a.Mode)
		if err != nil {
			return err
		}
		if err := rt.RegisterAgent(rec); err != nil {
			return err
		}
	}
	return nil
}

func newAgent(name, role, provider, fast, deep, apiKey, baseURL, mode string) (*agent.Record, error) {
	opts := []agent.Option{
		agent.WithProvider(provider),
		agent.WithModels(fast, deep),
		agent.WithCredentials(apiKey, baseURL),
	}
	if role != "" {
		opts = append(opts, agent.WithRole(role))
	}
	if mode != "" {
		opts = append(opts, agent.WithDefaultMode(mode))
	}
	return agent.New(name, opts...)
}

func withCloser(c io.Closer) Option {
	return func(o *options) { o.closers = append(o.closers, c) }
}
