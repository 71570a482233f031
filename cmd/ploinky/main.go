// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the ploinky CLI.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/prompt"
	"github.com/skutner/ploinky-sub003/pkg/runtime"
	"github.com/skutner/ploinky-sub003/pkg/telemetry"
)

var version = "0.1.0"

// app holds the state shared by every subcommand. The runtime is built on
// first use so commands that only touch the queue stay cheap.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      *config.Config
	rt       *runtime.Runtime
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
	json     bool

	configPath string
	profile    string

	// runtimeOpts are appended to the configured runtime options.
	runtimeOpts []runtime.Option
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	if err := a.command().Run(ctx, os.Args); err != nil {
		a.printError(err)
		os.Exit(exitCode(err))
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "ploinky",
		Usage:   "run skills, choose operators and review model answers",
		Version: version,
		Writer:  a.out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file", Sources: cli.EnvVars("PLOINKY_CONFIG_FILE")},
			&cli.StringFlag{Name: "profile", Usage: "configuration profile overlay (config.<profile>.yaml)", Sources: cli.EnvVars("PLOINKY_PROFILE")},
			&cli.StringSliceFlag{Name: "set", Usage: "override a configuration key (key=value)"},
			&cli.BoolFlag{Name: "json", Usage: "print machine readable output"},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.skillsCommand(),
			a.runCommand(),
			a.taskCommand(),
			a.operatorsCommand(),
			a.queueCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	a.json = cmd.Bool("json")
	a.configPath = cmd.String("config")
	a.profile = cmd.String("profile")

	args := make([]string, 0)
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	if a.profile != "" {
		args = append(args, "--profile", a.profile)
	}
	for _, kv := range cmd.StringSlice("set") {
		args = append(args, "--set", kv)
	}
	cfg, err := config.LoadWithCLI(args)
	if err != nil {
		return ctx, err
	}
	a.cfg = cfg
	a.logger = telemetry.ConfigureSlog(a.errOut, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig("ploinky", version, telemetryConfig(cfg, a.profile))
	if err != nil {
		return ctx, err
	}
	a.shutdown = shutdown
	return ctx, nil
}

func (a *app) after(ctx context.Context, _ *cli.Command) error {
	var first error
	if a.rt != nil {
		first = a.rt.Close()
		a.rt = nil
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// loadRuntime builds the runtime from the loaded configuration once.
func (a *app) loadRuntime() (*runtime.Runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	opts := []runtime.Option{
		runtime.WithLogger(a.logger),
		runtime.WithPrompter(prompt.NewConsole(prompt.WithInput(a.in), prompt.WithOutput(a.out))),
	}
	rt, err := runtime.FromConfig(a.cfg, append(opts, a.runtimeOpts...)...)
	if err != nil {
		return nil, err
	}
	a.rt = rt
	return rt, nil
}

func telemetryConfig(cfg *config.Config, profile string) telemetry.Config {
	headers := make(map[string]string, len(cfg.Telemetry.OTLPHeaders)+1)
	for k, v := range cfg.Telemetry.OTLPHeaders {
		headers[k] = v
	}
	if cfg.Telemetry.OTLPToken != "" {
		if cfg.Telemetry.OTLPUser != "" {
			headers["Authorization"] = "Basic " + basicAuth(cfg.Telemetry.OTLPUser, cfg.Telemetry.OTLPToken)
		} else {
			headers["Authorization"] = "Bearer " + cfg.Telemetry.OTLPToken
		}
	}
	return telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		OTLPHeaders:        headers,
		Environment:        profile,
		Providers:          configuredProviders(cfg),
	}
}

// configuredProviders lists the provider keys the default agent and the
// named agents use, sorted and without duplicates.
func configuredProviders(cfg *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(cfg.LLM.Provider)
	for _, a := range cfg.Agents {
		add(a.Provider)
	}
	sort.Strings(out)
	return out
}

func basicAuth(user, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + token))
}

// parseKeyValues turns repeated key=value flags into a map. Values are
// decoded as YAML scalars so numbers and booleans keep their type.
func parseKeyValues(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		out[key] = value
	}
	return out, nil
}

// print writes v as indented JSON in --json mode or when it is structured,
// and as plain text otherwise.
func (a *app) print(v any) error {
	if s, ok := v.(string); ok && !a.json {
		_, err := fmt.Fprintln(a.out, s)
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
