// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package store provides DuckDB persistence for both services.
//
// Each service owns its own database file: the notifier keeps the
// append-only notification log; the recommender keeps book embeddings and
// user interactions. Nearest-neighbor search over embeddings uses DuckDB's
// native array_cosine_similarity operator over fixed-size FLOAT arrays.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/biblioteka/eventsvc/internal/config"
	"github.com/biblioteka/eventsvc/internal/logging"
)

// DB wraps the DuckDB connection shared by a service's stores.
type DB struct {
	conn *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// opens a tuned connection.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d", cfg.Path, numThreads)
	if cfg.MaxMemory != "" {
		connStr += "&max_memory=" + cfg.MaxMemory
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// DuckDB is an in-process engine; a single connection avoids write
	// contention and the receive loop is sequential anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database opened")
	return &DB{conn: conn}, nil
}

// Conn exposes the underlying connection for stores and tests.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InitNotifierSchema creates the notification log table.
func (db *DB) InitNotifierSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notification_log (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			channel TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			payload JSON NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			sent_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_log_fingerprint
			ON notification_log(fingerprint, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_log_user
			ON notification_log(user_id)`,
	}
	return db.execAll(ctx, statements)
}

// InitRecommenderSchema creates the embedding and interaction tables.
// The embedding column is a fixed-size float array so that DuckDB's
// array distance operators apply.
func (db *DB) InitRecommenderSchema(ctx context.Context, dimensions int) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS book_embedding (
			id BIGINT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			embedding FLOAT[%d],
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, dimensions),
		`CREATE TABLE IF NOT EXISTS user_interaction (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			book_id BIGINT NOT NULL,
			interaction_type TEXT NOT NULL,
			rating DOUBLE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_interaction_user
			ON user_interaction(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_interaction_book
			ON user_interaction(book_id)`,
	}
	return db.execAll(ctx, statements)
}

// execAll runs schema statements one at a time; DuckDB does not support
// multi-statement execution.
func (db *DB) execAll(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}
