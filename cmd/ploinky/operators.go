// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/skutner/ploinky-sub003/pkg/config"
	"github.com/skutner/ploinky-sub003/pkg/errors"
)

func (a *app) operatorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "operators",
		Usage: "list, choose, call and serve operators",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list the registered operators",
				Action: a.listOperators,
			},
			{
				Name:      "choose",
				Usage:     "ask an agent which operators fit a task",
				ArgsUsage: "<description>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Value: "default", Usage: "agent that chooses"},
					&cli.StringFlag{Name: "mode", Usage: "fast or deep"},
					&cli.FloatFlag{Name: "threshold", Usage: "minimum confidence (default: operators.threshold)"},
				},
				Action: a.chooseOperator,
			},
			{
				Name:      "call",
				Usage:     "call an operator directly",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "param", Usage: "parameter (name=value)"},
				},
				Action: a.callOperator,
			},
			{
				Name:  "serve",
				Usage: "publish operators over MCP on stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Value: "default", Usage: "agent used by the choose_operator tool"},
				},
				Action: a.serveOperators,
			},
		},
	}
}

func (a *app) listOperators(_ context.Context, _ *cli.Command) error {
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	ops := rt.Operators().List()
	if a.json {
		rows := make([]map[string]string, 0, len(ops))
		for _, op := range ops {
			rows = append(rows, map[string]string{"name": op.Name, "description": op.Description})
		}
		return a.print(rows)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, op := range ops {
		fmt.Fprintf(w, "%s\t%s\n", op.Name, op.Description)
	}
	return w.Flush()
}

func (a *app) chooseOperator(ctx context.Context, cmd *cli.Command) error {
	description := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(description) == "" {
		return errors.Validation("a task description is required")
	}
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	res, err := rt.ChooseOperator(ctx, cmd.String("agent"), description, cmd.String("mode"), cmd.Float("threshold"))
	if err != nil {
		return err
	}
	if a.json {
		return a.print(res)
	}
	if len(res.SuitableOperators) == 0 {
		fmt.Fprintln(a.out, "no suitable operators")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONFIDENCE\tOPERATOR")
	for _, sel := range res.SuitableOperators {
		fmt.Fprintf(w, "%.2f\t%s\n", sel.Confidence, sel.Name)
	}
	return w.Flush()
}

func (a *app) callOperator(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errors.Validation("an operator name is required")
	}
	params, err := parseKeyValues(cmd.StringSlice("param"))
	if err != nil {
		return errors.Validation("%v", err)
	}
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	out, err := rt.CallOperator(ctx, name, params)
	if err != nil {
		return err
	}
	return a.print(out)
}

// serveOperators runs the MCP server until stdin closes. Configuration
// changes update the live thresholds and review settings.
func (a *app) serveOperators(ctx context.Context, cmd *cli.Command) error {
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	if a.configPath != "" {
		watcher, _, err := config.WatchConfig(ctx, a.configPath, a.profile, config.WithWatchLogger(a.logger))
		if err != nil {
			return err
		}
		defer watcher.Stop()
		watcher.OnChange(rt.ApplyConfig)
	}
	srv, err := rt.MCPServer(a.cfg.MCP.Name, a.cfg.MCP.Version, cmd.String("agent"))
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "cli.mcp.serving", "tools", len(srv.Tools()))
	return srv.ServeStdio()
}
