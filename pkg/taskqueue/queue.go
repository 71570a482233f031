// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskqueue is a file-backed request/response queue shared by a
// caller and out-of-process handlers.
//
// Layout under the root directory:
//
//	requests/<id>.json   pending requests
//	responses/<id>.json  successful replies
//	errors/<id>.json     failed replies
//	cancel/<id>          cancellation markers
//	locks/<id>/          held while a handler works on a task
package taskqueue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/telemetry"
)

// DefaultPollInterval is how often CheckResponse looks for a reply.
const DefaultPollInterval = 100 * time.Millisecond

const (
	dirRequests  = "requests"
	dirResponses = "responses"
	dirErrors    = "errors"
	dirCancel    = "cancel"
	dirLocks     = "locks"
)

// Task statuses reported to metrics.
const (
	StatusEnqueued  = "enqueued"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusTimedOut  = "timed_out"
)

// Request is a queued task.
type Request struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Response is a handler's reply. Error is set when Success is false.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Queue is a task queue rooted at a directory.
type Queue struct {
	root   string
	poll   time.Duration
	logger *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithPollInterval sets the response polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// Open creates the queue directories under root if needed.
func Open(root string, opts ...Option) (*Queue, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.Validation("queue root directory is required")
	}
	q := &Queue{root: root, poll: DefaultPollInterval, logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	for _, dir := range []string{dirRequests, dirResponses, dirErrors, dirCancel, dirLocks} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Root returns the queue directory.
func (q *Queue) Root() string { return q.root }

func (q *Queue) path(dir, id, ext string) string {
	return filepath.Join(q.root, dir, id+ext)
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errors.Validation("invalid task id %q", id)
	}
	return nil
}

// Enqueue writes a request and returns its task id.
func (q *Queue) Enqueue(ctx context.Context, command string, params, metadata map[string]any) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.Validation("task command is required")
	}
	req := Request{
		ID:        uuid.NewString(),
		Command:   command,
		Params:    params,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := writeJSON(q.path(dirRequests, req.ID, ".json"), req); err != nil {
		return "", err
	}
	telemetry.Metrics().RecordTask(ctx, StatusEnqueued)
	q.logger.DebugContext(ctx, "taskqueue.enqueued",
		slog.String("task_id", req.ID),
		slog.String("command", command))
	return req.ID, nil
}

// Load reads a pending request.
func (q *Queue) Load(id string) (Request, error) {
	if err := checkID(id); err != nil {
		return Request{}, err
	}
	var req Request
	if err := readJSON(q.path(dirRequests, id, ".json"), &req); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Request{}, errors.NotFound("task", id)
		}
		return Request{}, err
	}
	return req, nil
}

// Pending lists requests that have no reply yet, oldest first.
func (q *Queue) Pending() ([]Request, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, dirRequests))
	if err != nil {
		return nil, err
	}
	out := make([]Request, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if q.replied(id) {
			continue
		}
		req, err := q.Load(id)
		if err != nil {
			q.logger.Warn("taskqueue.pending.unreadable", slog.String("task_id", id), slog.String("error", err.Error()))
			continue
		}
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *Queue) replied(id string) bool {
	for _, dir := range []string{dirResponses, dirErrors} {
		if _, err := os.Stat(q.path(dir, id, ".json")); err == nil {
			return true
		}
	}
	return false
}

// Respond records a successful reply and retires the request.
func (q *Queue) Respond(ctx context.Context, id string, data any) error {
	return q.reply(ctx, id, dirResponses, Response{Success: true, Data: data}, StatusCompleted)
}

// Fail records a failed reply and retires the request.
func (q *Queue) Fail(ctx context.Context, id, message string) error {
	return q.reply(ctx, id, dirErrors, Response{Success: false, Error: message}, StatusFailed)
}

func (q *Queue) reply(ctx context.Context, id, dir string, resp Response, status string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := writeJSON(q.path(dir, id, ".json"), resp); err != nil {
		return err
	}
	if err := os.Remove(q.path(dirRequests, id, ".json")); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return err
	}
	telemetry.Metrics().RecordTask(ctx, status)
	return nil
}

// CheckResponse waits up to timeout for the reply to id and consumes it.
// A failed reply is returned as a Response with Success false. When no
// reply arrives in time the error has code TIMEOUT; a done context gives
// CANCELLED.
func (q *Queue) CheckResponse(ctx context.Context, id string, timeout time.Duration) (Response, error) {
	if err := checkID(id); err != nil {
		return Response{}, err
	}

	var wake <-chan fsnotify.Event
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		for _, dir := range []string{dirResponses, dirErrors} {
			_ = w.Add(filepath.Join(q.root, dir))
		}
		wake = w.Events
	}

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if resp, ok, err := q.take(id); err != nil || ok {
			return resp, err
		}
		select {
		case <-ctx.Done():
			return Response{}, errors.New(errors.CodeCancelled, "waiting for task response cancelled", ctx.Err()).
				WithContext("task_id", id)
		case <-deadline.C:
			if resp, ok, err := q.take(id); err != nil || ok {
				return resp, err
			}
			telemetry.Metrics().RecordTask(ctx, StatusTimedOut)
			return Response{}, errors.Newf(errors.CodeTimeout, "no response for task %s within %s", id, timeout).
				WithContext("task_id", id)
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}

// take consumes a reply file for id if one exists.
func (q *Queue) take(id string) (Response, bool, error) {
	for _, dir := range []string{dirResponses, dirErrors} {
		path := q.path(dir, id, ".json")
		var resp Response
		if err := readJSON(path, &resp); err != nil {
			if stderrors.Is(err, os.ErrNotExist) {
				continue
			}
			return Response{}, false, err
		}
		if dir == dirErrors {
			resp.Success = false
		}
		_ = os.Remove(path)
		_ = os.Remove(q.path(dirCancel, id, ""))
		return resp, true, nil
	}
	return Response{}, false, nil
}

// Cancel writes the cancellation marker for id.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.WriteFile(q.path(dirCancel, id, ""), []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		return err
	}
	telemetry.Metrics().RecordTask(ctx, StatusCancelled)
	return nil
}

// Cancelled reports whether a cancellation marker exists for id.
func (q *Queue) Cancelled(id string) bool {
	if checkID(id) != nil {
		return false
	}
	_, err := os.Stat(q.path(dirCancel, id, ""))
	return err == nil
}

// AcquireLock claims id for this worker. It returns false when another
// worker already holds the lock.
func (q *Queue) AcquireLock(id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	err := os.Mkdir(q.path(dirLocks, id, ""), 0o755)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, os.ErrExist) {
		return false, nil
	}
	return false, err
}

// ReleaseLock drops the lock on id. Releasing an unheld lock is a no-op.
func (q *Queue) ReleaseLock(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(q.path(dirLocks, id, "")); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeJSON writes v to path through a temporary file so readers never
// observe a partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
