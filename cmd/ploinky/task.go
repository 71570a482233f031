// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/urfave/cli/v3"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/review"
)

func (a *app) taskCommand() *cli.Command {
	return &cli.Command{
		Name:      "task",
		Usage:     "answer a task with an agent, optionally through the review loop",
		ArgsUsage: "<description>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Value: "default", Usage: "agent that answers"},
			&cli.StringFlag{Name: "mode", Usage: "fast or deep (default: the agent's mode)"},
			&cli.BoolFlag{Name: "review", Usage: "always run the plan, iterate and review loop"},
			&cli.IntFlag{Name: "max-iterations", Usage: "review loop iteration budget"},
			&cli.StringFlag{Name: "schema", Usage: "JSON schema file the answer must satisfy"},
			&cli.StringFlag{Name: "system", Usage: "system message prepended to the history"},
		},
		Action: a.runTask,
	}
}

func (a *app) runTask(ctx context.Context, cmd *cli.Command) error {
	description := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(description) == "" {
		return errors.Validation("a task description is required")
	}
	schema, err := loadSchema(cmd.String("schema"))
	if err != nil {
		return err
	}
	var history []llm.Message
	if sys := cmd.String("system"); sys != "" {
		history = append(history, llm.System(sys))
	}

	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	agentName := cmd.String("agent")
	var res review.Result
	if cmd.Bool("review") {
		res, err = rt.DoTaskWithReview(ctx, agentName, history, description, schema, cmd.String("mode"), cmd.Int("max-iterations"))
	} else {
		res, err = rt.DoTask(ctx, agentName, history, description, schema, cmd.String("mode"))
	}
	if err != nil {
		return err
	}
	if a.json {
		return a.print(res)
	}
	if res.Value != nil {
		return a.print(res.Value)
	}
	return a.print(res.Text)
}

func loadSchema(path string) (*jsonschema.Schema, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Validation("read schema: %v", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, errors.Validation("parse schema %s: %v", path, err)
	}
	return &schema, nil
}
