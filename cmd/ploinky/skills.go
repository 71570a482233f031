// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/skills"
)

type skillRow struct {
	Name        string   `json:"name"`
	Roles       []string `json:"roles,omitempty"`
	Arguments   []string `json:"arguments,omitempty"`
	Description string   `json:"description"`
	Score       float64  `json:"score,omitempty"`
}

func (a *app) skillsCommand() *cli.Command {
	roleFlag := &cli.StringFlag{Name: "role", Usage: "only skills this role may use"}
	return &cli.Command{
		Name:  "skills",
		Usage: "list, rank and use registered skills",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list the loaded skills",
				Flags:  []cli.Flag{roleFlag},
				Action: a.listSkills,
			},
			{
				Name:      "rank",
				Usage:     "rank skills against a query",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{roleFlag},
				Action:    a.rankSkills,
			},
			{
				Name:      "use",
				Usage:     "resolve the arguments of a skill and run it",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "arg", Usage: "argument value (name=value)"},
					&cli.StringFlag{Name: "task", Usage: "task text scanned for argument values"},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation step"},
				},
				Action: a.useSkill,
			},
		},
	}
}

func (a *app) listSkills(_ context.Context, cmd *cli.Command) error {
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	role := cmd.String("role")
	rows := make([]skillRow, 0)
	for _, name := range rt.Skills().Names() {
		s, err := rt.Skills().Get(name)
		if err != nil {
			continue
		}
		if role != "" && !s.AllowsRole(role) {
			continue
		}
		rows = append(rows, skillRow{
			Name:        s.Name,
			Roles:       s.Roles(),
			Arguments:   s.ArgumentNames(),
			Description: s.Title(),
		})
	}
	if a.json {
		return a.print(rows)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tROLES\tARGUMENTS\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, orDash(strings.Join(r.Roles, ",")),
			orDash(strings.Join(r.Arguments, ",")), r.Description)
	}
	return w.Flush()
}

func (a *app) rankSkills(_ context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.Validation("a query is required")
	}
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	scored, err := rt.RankSkillScored(query, cmd.String("role"))
	if err != nil {
		return err
	}
	if a.json {
		return a.print(scored)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tNAME")
	for _, s := range scored {
		fmt.Fprintf(w, "%.2f\t%s\n", s.Score, s.Name)
	}
	return w.Flush()
}

func (a *app) useSkill(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errors.Validation("a skill name is required")
	}
	args, err := parseKeyValues(cmd.StringSlice("arg"))
	if err != nil {
		return errors.Validation("%v", err)
	}
	rt, err := a.loadRuntime()
	if err != nil {
		return err
	}
	out, err := rt.UseSkill(ctx, name, args, skills.UseOptions{
		TaskDescription:  cmd.String("task"),
		SkipConfirmation: cmd.Bool("yes") || a.cfg.Skills.SkipConfirmation,
	})
	if err != nil {
		return err
	}
	return a.print(out)
}

// runCommand picks the best skill for a free-text task and runs it with
// arguments prefilled from the task text.
func (a *app) runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "pick the best skill for a task and run it",
		ArgsUsage: "<task>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Value: "default", Usage: "agent whose role filters the skills"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation step"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			task := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(task) == "" {
				return errors.Validation("a task is required")
			}
			rt, err := a.loadRuntime()
			if err != nil {
				return err
			}
			rec, err := rt.Agents().Get(cmd.String("agent"))
			if err != nil {
				return err
			}
			names, err := rt.RankSkill(task, rec.Role)
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "cli.run.selected", "skill", names[0], "candidates", len(names))
			out, err := rt.UseSkillAs(ctx, rec.Name, names[0], nil, skills.UseOptions{
				TaskDescription:  task,
				SkipConfirmation: cmd.Bool("yes") || a.cfg.Skills.SkipConfirmation,
			})
			if err != nil {
				return err
			}
			return a.print(out)
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
