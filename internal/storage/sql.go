// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
)

// SQL dialect names as sql-migrate knows them.
const (
	dialectSQLite   = "sqlite3"
	dialectPostgres = "postgres"
)

// migrationTable keeps schema bookkeeping apart from other tools' tables.
const migrationTable = "polychat_migrations"

// migrations is the chat schema. The chat itself is stored as a JSON
// document; the time columns exist for ordering.
var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_create_chats",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS chats (
					id         TEXT PRIMARY KEY,
					created_at BIGINT NOT NULL,
					updated_at BIGINT NOT NULL,
					doc        TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS chats_created_at_idx ON chats (created_at DESC)`,
			},
			Down: []string{
				`DROP INDEX IF EXISTS chats_created_at_idx`,
				`DROP TABLE IF EXISTS chats`,
			},
		},
	},
}

// SQLStore keeps chats in a SQL table.
type SQLStore struct {
	dialect string
	open    func() (*sql.DB, error)
	log     *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore creates a store backed by the SQLite file at path. A nil
// log uses slog.Default().
func NewSQLiteStore(path string, log *slog.Logger) *SQLStore {
	return &SQLStore{
		dialect: dialectSQLite,
		log:     orDefault(log),
		open: func() (*sql.DB, error) {
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			db, err := sql.Open("sqlite", path)
			if err != nil {
				return nil, err
			}
			// SQLite only supports one writer at a time.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
			db.SetConnMaxLifetime(0)
			for _, pragma := range []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
			} {
				if _, err := db.Exec(pragma); err != nil {
					db.Close()
					return nil, fmt.Errorf("failed to set pragma: %w", err)
				}
			}
			return db, nil
		},
	}
}

// NewPostgresStore creates a store backed by the Postgres database at dsn.
func NewPostgresStore(dsn string, log *slog.Logger) *SQLStore {
	return &SQLStore{
		dialect: dialectPostgres,
		log:     orDefault(log),
		open: func() (*sql.DB, error) {
			return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
		},
	}
}

// Init connects and applies pending migrations.
func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := s.open()
	if err != nil {
		return fmt.Errorf("opening %s database: %w", s.dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connecting to %s database: %w", s.dialect, err)
	}

	set := migrate.MigrationSet{TableName: migrationTable}
	applied, err := set.Exec(db, s.dialect, migrations, migrate.Up)
	if err != nil {
		db.Close()
		return fmt.Errorf("applying migrations: %w", err)
	}
	if applied > 0 {
		s.log.Debug("applied chat schema migrations", "dialect", s.dialect, "count", applied)
	}

	s.db = db
	return nil
}

// LoadAll returns every chat, newest first.
func (s *SQLStore) LoadAll(ctx context.Context) ([]model.Chat, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, doc FROM chats ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("fetching chats: %w", err)
	}
	defer rows.Close()

	chats := make([]model.Chat, 0)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		var chat model.Chat
		if err := json.Unmarshal([]byte(doc), &chat); err != nil {
			s.log.Warn("skipping corrupt chat row", "id", id, logger.Err(err))
			continue
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chats: %w", err)
	}

	sortNewestFirst(chats)
	return chats, nil
}

// Save upserts the chat row.
func (s *SQLStore) Save(ctx context.Context, chat model.Chat) error {
	if chat.ID == "" {
		return ErrInvalidChatID
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	doc, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encoding chat: %w", err)
	}

	query := s.rebind(`
		INSERT INTO chats (id, created_at, updated_at, doc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			doc = excluded.doc
	`)
	if _, err := db.ExecContext(ctx, query, chat.ID, unixNano(chat.CreatedAt), unixNano(chat.UpdatedAt), string(doc)); err != nil {
		return fmt.Errorf("saving chat %s: %w", chat.ID, err)
	}
	return nil
}

// Delete removes the chat row.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.rebind(`DELETE FROM chats WHERE id = ?`), id); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// rebind rewrites ? placeholders into Postgres $n form.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
