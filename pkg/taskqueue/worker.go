// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Handler executes one request and returns the reply data.
type Handler func(ctx context.Context, req Request) (any, error)

// ProcessPending runs handler on every pending request this worker can
// lock. Cancelled requests are failed without running the handler. It
// returns how many requests were handled.
func (q *Queue) ProcessPending(ctx context.Context, handler Handler) (int, error) {
	pending, err := q.Pending()
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, req := range pending {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		ok, err := q.AcquireLock(req.ID)
		if err != nil {
			return handled, err
		}
		if !ok {
			continue
		}
		err = q.handle(ctx, req, handler)
		if relErr := q.ReleaseLock(req.ID); relErr != nil {
			q.logger.WarnContext(ctx, "taskqueue.unlock.failed",
				slog.String("task_id", req.ID),
				slog.String("error", relErr.Error()))
		}
		if err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

func (q *Queue) handle(ctx context.Context, req Request, handler Handler) error {
	// Another worker may have finished it between listing and locking.
	if q.replied(req.ID) {
		return nil
	}
	if q.Cancelled(req.ID) {
		return q.Fail(ctx, req.ID, "task cancelled")
	}
	data, err := safeCall(ctx, req, handler)
	if err != nil {
		q.logger.WarnContext(ctx, "taskqueue.handler.failed",
			slog.String("task_id", req.ID),
			slog.String("command", req.Command),
			slog.String("error", err.Error()))
		return q.Fail(ctx, req.ID, err.Error())
	}
	return q.Respond(ctx, req.ID, data)
}

func safeCall(ctx context.Context, req Request, handler Handler) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, req)
}

// Work processes pending requests every poll interval until ctx is done.
func (q *Queue) Work(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		if _, err := q.ProcessPending(ctx, handler); err != nil && ctx.Err() == nil {
			q.logger.ErrorContext(ctx, "taskqueue.work.failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
