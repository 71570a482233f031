// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime settings from YAML files, profile overlays,
// PLOINKY_ environment variables and command-line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides (PLOINKY_LLM_PROVIDER -> llm.provider).
const EnvPrefix = "PLOINKY_"

type Config struct {
	Log        LogConfig              `koanf:"log"`
	LLM        LLMConfig              `koanf:"llm"`
	Agents     map[string]AgentConfig `koanf:"agents"`
	Skills     SkillsConfig           `koanf:"skills"`
	Operators  OperatorsConfig        `koanf:"operators"`
	Review     ReviewConfig           `koanf:"review"`
	Queue      QueueConfig            `koanf:"queue"`
	Telemetry  TelemetryConfig        `koanf:"telemetry"`
	MCP        MCPConfig              `koanf:"mcp"`
	Governance GovernanceConfig       `koanf:"governance"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text, json, console
}

// LLMConfig describes the default agent.
type LLMConfig struct {
	Provider    string        `koanf:"provider"` // openai, anthropic, gemini, huggingface, ollama, qwen
	Model       string        `koanf:"model"`
	FastModel   string        `koanf:"fast_model"`
	DeepModel   string        `koanf:"deep_model"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Mode        string        `koanf:"mode"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	Retry       RetryConfig   `koanf:"retry"`
	Breaker     BreakerConfig `koanf:"breaker"`
}

// RetryConfig retries throttled and failed provider calls. A single
// attempt, the default, disables retries.
type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

// BreakerConfig opens a per-host circuit after consecutive failures. A zero
// threshold, the default, disables it.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
}

// AgentConfig describes an additional named agent.
type AgentConfig struct {
	Role      string `koanf:"role"`
	Provider  string `koanf:"provider"`
	FastModel string `koanf:"fast_model"`
	DeepModel string `koanf:"deep_model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	Mode      string `koanf:"mode"`
}

type SkillsConfig struct {
	Dir                    string  `koanf:"dir"`
	OptionThreshold        float64 `koanf:"option_threshold"`
	DisableTokenAssignment bool    `koanf:"disable_token_assignment"`
	SkipConfirmation       bool    `koanf:"skip_confirmation"`
	// Assistant names the agent that extracts arguments and classifies
	// confirmation replies. Empty disables model assistance.
	Assistant string `koanf:"assistant"`
}

type OperatorsConfig struct {
	Threshold float64 `koanf:"threshold"`
	// Commands publishes external programs as operators, keyed by name.
	Commands map[string]CommandConfig `koanf:"commands"`
}

// CommandConfig runs Command with the operator params as JSON on stdin.
type CommandConfig struct {
	Description string        `koanf:"description"`
	Command     []string      `koanf:"command"`
	Timeout     time.Duration `koanf:"timeout"`
}

type ReviewConfig struct {
	MaxIterations int    `koanf:"max_iterations"`
	Mode          string `koanf:"mode"`
	AuditPath     string `koanf:"audit_path"`
}

type QueueConfig struct {
	Dir          string        `koanf:"dir"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
	OTLPUser           string            `koanf:"otlp_user"`
	OTLPToken          string            `koanf:"otlp_token"`
}

// MCPConfig names the operator server.
type MCPConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// GovernanceConfig lists the rules that gate skills and operators.
type GovernanceConfig struct {
	Policies []PolicyRule `koanf:"policies"`
}

// PolicyRule is one governance rule. Effect is allow, deny or pending;
// type is skill, operator or mcp; name is a glob.
type PolicyRule struct {
	ID     string   `koanf:"id"`
	Effect string   `koanf:"effect"`
	Type   string   `koanf:"type"`
	Name   string   `koanf:"name"`
	Roles  []string `koanf:"roles"`
	Reason string   `koanf:"reason"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.mode", "fast")
	k.Set("llm.timeout", "60s")
	k.Set("llm.retry.max_attempts", 1)
	k.Set("llm.retry.initial_delay", "200ms")
	k.Set("llm.retry.max_delay", "5s")
	k.Set("llm.breaker.failure_threshold", 0)
	k.Set("llm.breaker.cooldown", "30s")

	k.Set("skills.option_threshold", 0.8)
	k.Set("operators.threshold", 0.5)
	k.Set("review.max_iterations", 3)
	k.Set("review.mode", "fast")
	k.Set("queue.dir", ".ploinky/queue")
	k.Set("queue.poll_interval", "100ms")
	k.Set("queue.timeout", "5m")

	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_timeout_seconds", 10)
	k.Set("mcp.name", "ploinky-operators")
	k.Set("mcp.version", "0.1.0")
}

// Load reads the file at path (optional), then environment overrides.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile layers config.<profile>.yaml over the base file when it
// exists next to it. A missing profile file is not an error.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI understands --config, --profile (alias --env) and repeated
// --set key=value arguments. Overrides win over files and environment.
func LoadWithCLI(args []string) (*Config, error) {
	opts, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, sets)
}

func load(path, profile string, sets map[string]any) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile %s: %w", overlay, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range sets {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if cfg.LLM.FastModel == "" {
		cfg.LLM.FastModel = cfg.LLM.Model
	}
	return &cfg, nil
}

// profileConfigPath returns base's profile sibling (config.dev.yaml for
// config.yaml and "dev") if it exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]any, error) {
	var opts cliOptions
	sets := make(map[string]any)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, inline := strings.Cut(arg, "=")
		if !strings.HasPrefix(name, "--") {
			continue
		}
		if !inline {
			switch name {
			case "--config", "--profile", "--env", "--set":
				if i+1 >= len(args) {
					return opts, nil, fmt.Errorf("%s requires a value", name)
				}
				i++
				value = args[i]
			}
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, raw, ok := strings.Cut(value, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return opts, nil, fmt.Errorf("invalid --set %q, expected key=value", value)
			}
			sets[key] = parseValue(raw)
		}
	}
	return opts, sets, nil
}

// parseValue reads a --set value as YAML so numbers, booleans and inline
// maps keep their type. Anything unparseable stays a string.
func parseValue(raw string) any {
	var out any
	if err := yamlv3.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return raw
	}
	return out
}
