// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus is the terminal state of one processing attempt.
type OutcomeStatus string

const (
	StatusPending OutcomeStatus = "PENDING"
	StatusSent    OutcomeStatus = "SENT"
	StatusFailed  OutcomeStatus = "FAILED"
	StatusSkipped OutcomeStatus = "SKIPPED"
)

// OutcomeRecord is one row of the append-only notification log. It is the
// deduplication source of truth and the audit trail; rows are never
// mutated or deleted.
type OutcomeRecord struct {
	ID           string        `json:"id"`
	UserID       int64         `json:"user_id"`
	EventKind    string        `json:"type"`
	Channel      string        `json:"channel"`
	Fingerprint  string        `json:"-"`
	Payload      []byte        `json:"-"`
	Status       OutcomeStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
}

// OutcomeFilter narrows List queries. Zero values mean "no filter".
type OutcomeFilter struct {
	UserID    int64
	EventKind string
	Status    string
	Limit     int
	Offset    int
}

// OutcomeLog persists processing outcomes in the notification_log table.
type OutcomeLog struct {
	db *DB
}

// NewOutcomeLog creates the store over an open database.
func NewOutcomeLog(db *DB) *OutcomeLog {
	return &OutcomeLog{db: db}
}

// Append inserts one outcome record. The ID and CreatedAt are assigned
// here when unset.
func (l *OutcomeLog) Append(ctx context.Context, rec *OutcomeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_log (
			id, user_id, type, channel, fingerprint,
			payload, status, error_message, created_at, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.EventKind,
		rec.Channel,
		rec.Fingerprint,
		string(rec.Payload),
		string(rec.Status),
		nullableString(rec.ErrorMessage),
		rec.CreatedAt,
		rec.SentAt,
	)
	if err != nil {
		return fmt.Errorf("append outcome record: %w", err)
	}
	return nil
}

// HasRecentDelivery reports whether a SENT or PENDING record with the
// fingerprint exists at or after since. FAILED and SKIPPED records do not
// block reprocessing.
func (l *OutcomeLog) HasRecentDelivery(ctx context.Context, fingerprint string, since time.Time) (bool, error) {
	query := `
		SELECT COUNT(*) FROM notification_log
		WHERE fingerprint = ?
		  AND created_at >= ?
		  AND status IN ('SENT', 'PENDING')
	`
	var count int64
	if err := l.db.conn.QueryRowContext(ctx, query, fingerprint, since).Scan(&count); err != nil {
		return false, fmt.Errorf("query deduplication window: %w", err)
	}
	return count > 0, nil
}

// List returns records matching the filter, newest first, along with the
// total matching count for pagination.
func (l *OutcomeLog) List(ctx context.Context, filter OutcomeFilter) ([]OutcomeRecord, int64, error) {
	where, args := buildOutcomeWhere(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM notification_log" + where
	if err := l.db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outcome records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, type, channel, fingerprint, status, error_message, created_at, sent_at
		FROM notification_log` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := l.db.conn.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list outcome records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var errMsg sql.NullString
		var sentAt sql.NullTime
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.EventKind, &rec.Channel,
			&rec.Fingerprint, &status, &errMsg, &rec.CreatedAt, &sentAt); err != nil {
			return nil, 0, fmt.Errorf("scan outcome record: %w", err)
		}
		rec.Status = OutcomeStatus(status)
		if errMsg.Valid {
			rec.ErrorMessage = errMsg.String
		}
		if sentAt.Valid {
			t := sentAt.Time
			rec.SentAt = &t
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// StatusCounts returns the number of records per status.
func (l *OutcomeLog) StatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.conn.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM notification_log GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count outcome statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func buildOutcomeWhere(filter OutcomeFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.UserID != 0 {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.EventKind != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.EventKind)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, strings.ToUpper(filter.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
