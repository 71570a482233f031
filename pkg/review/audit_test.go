// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func sampleEvents() []AuditEvent {
	now := time.Now().UTC()
	return []AuditEvent{
		{SessionID: "s-1", Stage: StageFirstPass, Content: "11", At: now},
		{SessionID: "s-1", Stage: StagePlan, Content: []string{"add", "check"}, At: now},
		{SessionID: "s-1", Stage: StageReview, Iteration: 1, Approved: true, Content: "ok", At: now},
		{SessionID: "s-2", Stage: StageFirstPass, Content: map[string]any{"sum": 14}, At: now},
	}
}

func TestMemoryAuditStore(t *testing.T) {
	store := NewMemoryAuditStore()
	for _, ev := range sampleEvents() {
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	events, err := store.List(context.Background(), AuditFilter{SessionID: "s-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	reviews, _ := store.List(context.Background(), AuditFilter{Stage: StageReview})
	if len(reviews) != 1 || !reviews[0].Approved {
		t.Fatalf("unexpected review events %+v", reviews)
	}
	limited, _ := store.List(context.Background(), AuditFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestSQLiteAuditStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:review_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	for _, ev := range sampleEvents() {
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	events, err := store.List(context.Background(), AuditFilter{SessionID: "s-1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Stage != StageFirstPass || events[0].Content != "11" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	plan, ok := events[1].Content.([]any)
	if !ok || len(plan) != 2 || plan[0] != "add" {
		t.Fatalf("plan content not round-tripped: %#v", events[1].Content)
	}
	if events[2].Iteration != 1 || !events[2].Approved {
		t.Fatalf("unexpected review event %+v", events[2])
	}

	other, err := store.List(context.Background(), AuditFilter{SessionID: "s-2", Stage: StageFirstPass})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("expected 1 event for s-2, got %d", len(other))
	}
	if obj := other[0].Content.(map[string]any); obj["sum"] != float64(14) {
		t.Fatalf("unexpected content %#v", other[0].Content)
	}
}

func TestOpenSQLiteAuditStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := OpenSQLiteAuditStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Record(context.Background(), AuditEvent{SessionID: "x", Stage: StagePlan}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLiteAuditStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	events, err := reopened.List(context.Background(), AuditFilter{SessionID: "x"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected persisted event, got %d", len(events))
	}
}
