// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Audit stages recorded during a task.
const (
	StageFirstPass = "first_pass"
	StagePlan      = "plan"
	StageCandidate = "candidate"
	StageReview    = "review"
)

// AuditEvent is one step of a review session.
type AuditEvent struct {
	SessionID string
	Stage     string
	Iteration int
	Approved  bool
	Content   any
	Error     string
	At        time.Time
}

// AuditStore persists review audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries.
type AuditFilter struct {
	SessionID string
	Stage     string
	Limit     int
}

// MemoryAuditStore keeps audit events in memory.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore returns an in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record appends an audit event.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in recording order.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, 0, len(s.events))
	for _, ev := range s.events {
		if filter.SessionID != "" && ev.SessionID != filter.SessionID {
			continue
		}
		if filter.Stage != "" && ev.Stage != filter.Stage {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func encodeContent(content any) ([]byte, error) {
	if content == nil {
		return []byte("null"), nil
	}
	return json.Marshal(content)
}

func decodeContent(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
