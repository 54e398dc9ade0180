// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InteractionRecord is one row of the append-only interaction history.
// Multiple interactions per (user, book) pair are valid.
type InteractionRecord struct {
	ID              string
	UserID          int64
	BookID          int64
	InteractionType string
	Rating          *float64
	CreatedAt       time.Time
}

// InteractionStore persists user-book interactions.
type InteractionStore struct {
	db *DB
}

// NewInteractionStore creates the store over an open database.
func NewInteractionStore(db *DB) *InteractionStore {
	return &InteractionStore{db: db}
}

// Append inserts one interaction record.
func (s *InteractionStore) Append(ctx context.Context, rec *InteractionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_interaction (id, user_id, book_id, interaction_type, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.conn.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.BookID, rec.InteractionType, rec.Rating, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

// BookIDsForUser returns the distinct books a user has interacted with.
func (s *InteractionStore) BookIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT DISTINCT book_id FROM user_interaction WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan book id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
