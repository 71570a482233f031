// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// SQLiteAuditStore persists audit events in SQLite.
type SQLiteAuditStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteAuditStore creates a SQLite-backed audit store and ensures schema.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureAuditSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteAuditStore{db: db}, nil
}

// OpenSQLiteAuditStore opens the database at path and owns it.
func OpenSQLiteAuditStore(path string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// Close releases the database when the store opened it.
func (s *SQLiteAuditStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Record stores a single audit event.
func (s *SQLiteAuditStore) Record(ctx context.Context, event AuditEvent) error {
	content, err := encodeContent(event.Content)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_audit_events (
			session_id, stage, iteration, approved, content_json, error_text, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.SessionID,
		event.Stage,
		event.Iteration,
		event.Approved,
		string(content),
		event.Error,
		normalizeTime(event.At),
	)
	return err
}

// List returns audit events matching the filter.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT session_id, stage, iteration, approved, content_json, error_text, recorded_at
		FROM review_audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.SessionID != "" {
		addFilter("session_id = ?", filter.SessionID)
	}
	if filter.Stage != "" {
		addFilter("stage = ?", filter.Stage)
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			event       AuditEvent
			contentJSON sql.NullString
			errorText   sql.NullString
			recorded    sql.NullTime
		)
		if err := rows.Scan(
			&event.SessionID,
			&event.Stage,
			&event.Iteration,
			&event.Approved,
			&contentJSON,
			&errorText,
			&recorded,
		); err != nil {
			return nil, err
		}
		if contentJSON.Valid && contentJSON.String != "" {
			if content, err := decodeContent([]byte(contentJSON.String)); err == nil {
				event.Content = content
			}
		}
		event.Error = errorText.String
		if recorded.Valid {
			event.At = recorded.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func ensureAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS review_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			iteration INTEGER NOT NULL DEFAULT 0,
			approved BOOLEAN NOT NULL DEFAULT 0,
			content_json TEXT,
			error_text TEXT,
			recorded_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_review_audit_session ON review_audit_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_review_audit_stage ON review_audit_events(stage);
	`)
	return err
}
