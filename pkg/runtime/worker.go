// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"log/slog"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/governance"
	"github.com/skutner/ploinky-sub003/pkg/skills"
	"github.com/skutner/ploinky-sub003/pkg/taskqueue"
)

// Start runs a queue worker in the background that answers every queued
// request by calling the operator named by its command. It is a no-op
// without a queue or when the worker already runs.
func (r *Runtime) Start(ctx context.Context) error {
	q, err := r.requireQueue()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workerCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.workerCancel = cancel
	r.workerDone = done
	go func() {
		defer close(done)
		r.logger.Info("runtime.worker.started", slog.String("queue", q.Root()))
		_ = q.Work(ctx, r.dispatch)
		r.logger.Info("runtime.worker.stopped")
	}()
	return nil
}

// Stop halts the queue worker and waits for it to exit.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel, done := r.workerCancel, r.workerDone
	r.workerCancel, r.workerDone = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// dispatch is the queue handler: the command names an operator. Nobody is
// around to approve, so pending policy decisions deny.
func (r *Runtime) dispatch(ctx context.Context, req taskqueue.Request) (any, error) {
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	role, _ := req.Metadata["role"].(string)
	action := governance.Action{Type: governance.ActionOperator, Name: req.Command, Role: role}
	if err := governance.Enforce(ctx, r.rules, nil, action); err != nil {
		return nil, err
	}
	return r.operators.Call(ctx, req.Command, params)
}

// Enqueue submits command with params to the task queue.
func (r *Runtime) Enqueue(ctx context.Context, command string, params, metadata map[string]any) (string, error) {
	q, err := r.requireQueue()
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, command, params, metadata)
}

// QueueAction returns a skill action that hands the confirmed arguments to
// the task queue under command and waits for the worker's reply.
func (r *Runtime) QueueAction(command string) skills.ActionFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		q, err := r.requireQueue()
		if err != nil {
			return nil, err
		}
		id, err := q.Enqueue(ctx, command, args, map[string]any{"source": "skill"})
		if err != nil {
			return nil, err
		}
		resp, err := q.CheckResponse(ctx, id, r.Settings().QueueTimeout)
		if err != nil {
			if errors.Is(err, errors.CodeCancelled) || errors.Is(err, errors.CodeTimeout) {
				_ = q.Cancel(context.WithoutCancel(ctx), id)
			}
			return nil, err
		}
		if !resp.Success {
			return nil, errors.Newf(errors.CodeInternal, "task %s failed: %s", command, resp.Error).
				WithContext("task_id", id)
		}
		return resp.Data, nil
	}
}

// LoadSkills registers every SKILL.md manifest under dir. Their actions run
// through the task queue under the skill name.
func (r *Runtime) LoadSkills(dir string) ([]string, error) {
	manifests, err := skills.LoadManifestDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(manifests))
	for _, m := range manifests {
		spec := m.Spec(r.QueueAction(m.Name))
		spec.DisableTokenAssignment = r.disableTokenAssignment
		name, err := r.RegisterSkill(spec)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}
