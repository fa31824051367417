// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/polychat/internal/model"
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// Store is a chat document backend.
type Store interface {
	// Init establishes the connection and prepares the schema. It may be
	// called again after a failure.
	Init(ctx context.Context) error

	// LoadAll returns every stored chat, newest CreatedAt first.
	LoadAll(ctx context.Context) ([]model.Chat, error)

	// Save inserts or fully replaces the chat with the same ID.
	Save(ctx context.Context, chat model.Chat) error

	// Delete removes the chat. Deleting a missing chat is not an error.
	Delete(ctx context.Context, id string) error

	Close(ctx context.Context) error
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names a Store implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
	BackendMemory   Backend = "memory"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend Backend

	// File backend
	Dir string

	// SQL backends
	SQLitePath  string
	PostgresDSN string

	// Mongo backend
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Logger receives backend warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open builds the configured store. No connection is made until Init.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file backend: %w", ErrMissingSetting)
		}
		return NewFileStore(cfg.Dir, cfg.Logger), nil
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend: %w", ErrMissingSetting)
		}
		return NewSQLiteStore(cfg.SQLitePath, cfg.Logger), nil
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend: %w", ErrMissingSetting)
		}
		return NewPostgresStore(cfg.PostgresDSN, cfg.Logger), nil
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo backend: %w", ErrMissingSetting)
		}
		return NewMongoStore(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotInitialized is returned by store operations before a successful Init.
var ErrNotInitialized = &StoreError{Message: "store not initialized"}

// ErrMissingSetting is returned by Open when the backend's location is unset.
var ErrMissingSetting = &StoreError{Message: "required storage setting is empty"}

// ErrInvalidChatID is returned for IDs that cannot name a stored document.
var ErrInvalidChatID = &StoreError{Message: "invalid chat id"}

// StoreError is a storage failure comparable with errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// HELPERS
// =============================================================================

// sortNewestFirst orders chats by CreatedAt descending, ID as tie-break.
func sortNewestFirst(chats []model.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID > chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
}

// validateID rejects IDs that could escape a directory or collide with
// reserved names.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidChatID, id)
	}
	return nil
}
