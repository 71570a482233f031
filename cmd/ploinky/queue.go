// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/taskqueue"
)

func (a *app) queueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "submit, answer and work file-based tasks",
		Commands: []*cli.Command{
			{
				Name:      "enqueue",
				Usage:     "submit a task and print its id",
				ArgsUsage: "<command>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "param", Usage: "parameter (name=value)"},
					&cli.BoolFlag{Name: "wait", Usage: "wait for the reply"},
					&cli.DurationFlag{Name: "timeout", Usage: "how long --wait waits (default: queue.timeout)"},
				},
				Action: a.enqueueTask,
			},
			{
				Name:   "pending",
				Usage:  "list tasks without a reply",
				Action: a.pendingTasks,
			},
			{
				Name:      "wait",
				Usage:     "wait for the reply of a task",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Usage: "how long to wait (default: queue.timeout)"},
				},
				Action: a.waitTask,
			},
			{
				Name:      "respond",
				Usage:     "answer a task with a JSON (or text) result",
				ArgsUsage: "<id> <result>",
				Action:    a.respondTask,
			},
			{
				Name:      "fail",
				Usage:     "answer a task with an error message",
				ArgsUsage: "<id> <message>",
				Action:    a.failTask,
			},
			{
				Name:      "cancel",
				Usage:     "ask the workers to drop a task",
				ArgsUsage: "<id>",
				Action:    a.cancelTask,
			},
			{
				Name:   "work",
				Usage:  "answer queued tasks with the registered operators until interrupted",
				Action: a.work,
			},
		},
	}
}

func (a *app) openQueue() (*taskqueue.Queue, error) {
	return taskqueue.Open(a.cfg.Queue.Dir,
		taskqueue.WithPollInterval(a.cfg.Queue.PollInterval),
		taskqueue.WithLogger(a.logger))
}

func (a *app) waitTimeout(cmd *cli.Command) time.Duration {
	if d := cmd.Duration("timeout"); d > 0 {
		return d
	}
	return a.cfg.Queue.Timeout
}

func (a *app) enqueueTask(ctx context.Context, cmd *cli.Command) error {
	command := cmd.Args().First()
	if command == "" {
		return errors.Validation("a command is required")
	}
	params, err := parseKeyValues(cmd.StringSlice("param"))
	if err != nil {
		return errors.Validation("%v", err)
	}
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	id, err := q.Enqueue(ctx, command, params, map[string]any{"source": "cli"})
	if err != nil {
		return err
	}
	if !cmd.Bool("wait") {
		return a.print(id)
	}
	return a.await(ctx, q, id, a.waitTimeout(cmd))
}

func (a *app) await(ctx context.Context, q *taskqueue.Queue, id string, timeout time.Duration) error {
	resp, err := q.CheckResponse(ctx, id, timeout)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.Newf(errors.CodeInternal, "task failed: %s", resp.Error).WithContext("task_id", id)
	}
	return a.print(resp.Data)
}

func (a *app) pendingTasks(_ context.Context, _ *cli.Command) error {
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	pending, err := q.Pending()
	if err != nil {
		return err
	}
	if a.json {
		return a.print(pending)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND\tCREATED")
	for _, req := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\n", req.ID, req.Command, req.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) waitTask(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.Validation("a task id is required")
	}
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	return a.await(ctx, q, id, a.waitTimeout(cmd))
}

func (a *app) respondTask(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return errors.Validation("usage: queue respond <id> <result>")
	}
	id := cmd.Args().First()
	raw := strings.Join(cmd.Args().Tail(), " ")
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		data = raw
	}
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	return q.Respond(ctx, id, data)
}

func (a *app) failTask(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return errors.Validation("usage: queue fail <id> <message>")
	}
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	return q.Fail(ctx, cmd.Args().First(), strings.Join(cmd.Args().Tail(), " "))
}

func (a *app) cancelTask(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.Validation("a task id is required")
	}
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	return q.Cancel(ctx, id)
}

// work runs the runtime's queue worker until the context ends.
func (a *app) work(ctx context.Context, _ *cli.Command) error {
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "cli.queue.working", "operators", len(rt.Operators().List()))
	<-ctx.Done()
	rt.Stop()
	return nil
}
