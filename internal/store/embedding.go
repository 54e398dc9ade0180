// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// EmbeddingRecord is the locally cached copy of a catalog item, keyed by
// the upstream book identifier. Embedding is nil until a vector has been
// generated for the item.
type EmbeddingRecord struct {
	ID          int64
	Title       string
	Author      string
	Category    string
	Description string
	Embedding   []float32
	UpdatedAt   time.Time
}

// SimilarBook is one nearest-neighbor query result.
type SimilarBook struct {
	ID         int64   `json:"book_id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

// PopularBook is one cold-start result ranked by interaction count.
type PopularBook struct {
	ID       int64  `json:"book_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Score    int64  `json:"score"`
}

// EmbeddingStore persists book embeddings and answers similarity queries
// using DuckDB's native array_cosine_similarity operator.
type EmbeddingStore struct {
	db         *DB
	dimensions int
}

// NewEmbeddingStore creates the store over an open database.
func NewEmbeddingStore(db *DB, dimensions int) *EmbeddingStore {
	return &EmbeddingStore{db: db, dimensions: dimensions}
}

// UpsertMetadata inserts or updates the descriptive fields for a book.
// The stored embedding is left untouched; SetVector replaces it
// separately so that a provider failure keeps the stale vector.
func (s *EmbeddingStore) UpsertMetadata(ctx context.Context, rec *EmbeddingRecord) error {
	// DuckDB resolves a bare CURRENT_TIMESTAMP inside DO UPDATE SET as a
	// column reference; now() binds correctly in both positions.
	query := `
		INSERT INTO book_embedding (id, title, author, category, description, updated_at)
		VALUES (?, ?, ?, ?, ?, now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			updated_at = now()
	`
	_, err := s.db.conn.ExecContext(ctx, query,
		rec.ID, rec.Title, rec.Author, rec.Category, rec.Description)
	if err != nil {
		return fmt.Errorf("upsert book %d: %w", rec.ID, err)
	}
	return nil
}

// SetVector replaces the stored embedding for a book.
func (s *EmbeddingStore) SetVector(ctx context.Context, id int64, vec []float32) error {
	query := fmt.Sprintf(
		"UPDATE book_embedding SET embedding = CAST(? AS FLOAT[%d]), updated_at = now() WHERE id = ?",
		s.dimensions)
	res, err := s.db.conn.ExecContext(ctx, query, vectorLiteral(vec), id)
	if err != nil {
		return fmt.Errorf("set embedding for book %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("set embedding for book %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes the record for a book. Deleting an absent book is not an
// error.
func (s *EmbeddingStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.conn.ExecContext(ctx,
		"DELETE FROM book_embedding WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	return nil
}

// Get fetches one record, including its embedding when present.
func (s *EmbeddingStore) Get(ctx context.Context, id int64) (*EmbeddingRecord, error) {
	query := `
		SELECT id, title, author, category, description,
		       CAST(embedding AS VARCHAR), updated_at
		FROM book_embedding WHERE id = ?
	`
	var rec EmbeddingRecord
	var vecStr sql.NullString
	err := s.db.conn.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Title, &rec.Author, &rec.Category, &rec.Description,
		&vecStr, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	if vecStr.Valid {
		vec, err := parseVectorLiteral(vecStr.String)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for book %d: %w", id, err)
		}
		rec.Embedding = vec
	}
	return &rec, nil
}

// SimilarToVector returns up to limit books nearest to the query vector
// by cosine similarity, excluding the given book IDs. Rows with no
// embedding are skipped; similarity filtering is left to the caller.
func (s *EmbeddingStore) SimilarToVector(ctx context.Context, vec []float32, exclude []int64, limit int) ([]SimilarBook, error) {
	args := []any{vectorLiteral(vec)}
	excludeClause := ""
	if len(exclude) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(exclude)), ", ")
		excludeClause = " AND id NOT IN (" + placeholders + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, title, author, category,
		       array_cosine_similarity(embedding, CAST(? AS FLOAT[%d])) AS similarity
		FROM book_embedding
		WHERE embedding IS NOT NULL%s
		ORDER BY similarity DESC
		LIMIT ?
	`, s.dimensions, excludeClause)

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SimilarBook
	for rows.Next() {
		var b SimilarBook
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// Popular returns up to limit books ranked by total interaction count,
// used as the cold-start strategy when a user has no history.
func (s *EmbeddingStore) Popular(ctx context.Context, limit int) ([]PopularBook, error) {
	query := `
		SELECT be.id, be.title, be.author, be.category, COUNT(ui.id) AS interaction_count
		FROM book_embedding be
		LEFT JOIN user_interaction ui ON ui.book_id = be.id
		GROUP BY be.id, be.title, be.author, be.category
		ORDER BY interaction_count DESC
		LIMIT ?
	`
	rows, err := s.db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("popularity query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []PopularBook
	for rows.Next() {
		var b PopularBook
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.Score); err != nil {
			return nil, fmt.Errorf("scan popularity row: %w", err)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// VectorsByIDs fetches the embeddings for the given books, skipping books
// without one. Used to build a user's taste centroid.
func (s *EmbeddingStore) VectorsByIDs(ctx context.Context, ids []int64) ([][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := "SELECT CAST(embedding AS VARCHAR) FROM book_embedding WHERE embedding IS NOT NULL AND id IN (" + placeholders + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vectors [][]float32
	for rows.Next() {
		var vecStr string
		if err := rows.Scan(&vecStr); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := parseVectorLiteral(vecStr)
		if err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, rows.Err()
}
