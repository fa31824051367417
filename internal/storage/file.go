// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/util"
)

// FileStore keeps one JSON document per chat in BaseDir.
type FileStore struct {
	// BaseDir is the directory holding <chat-id>.json files
	BaseDir string

	log *slog.Logger
}

// NewFileStore creates a store rooted at dir. A nil log uses slog.Default().
func NewFileStore(dir string, log *slog.Logger) *FileStore {
	return &FileStore{BaseDir: dir, log: orDefault(log)}
}

// DefaultDir returns ~/.polychat/chats.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".polychat", "chats"), nil
}

// Init creates the directory.
func (s *FileStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.BaseDir, 0o700); err != nil {
		return fmt.Errorf("creating chat directory: %w", err)
	}
	return nil
}

// LoadAll reads every chat file. Unreadable or corrupt files are skipped.
func (s *FileStore) LoadAll(ctx context.Context) ([]model.Chat, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Chat{}, nil
		}
		return nil, fmt.Errorf("listing chats: %w", err)
	}

	chats := make([]model.Chat, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.BaseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("skipping unreadable chat file", "path", path, logger.Err(err))
			continue
		}
		var chat model.Chat
		if err := json.Unmarshal(data, &chat); err != nil || chat.ID == "" {
			s.log.Warn("skipping corrupt chat file", "path", path, logger.Err(err))
			continue
		}
		chats = append(chats, chat)
	}

	sortNewestFirst(chats)
	return chats, nil
}

// Save writes the chat atomically.
func (s *FileStore) Save(ctx context.Context, chat model.Chat) error {
	if err := validateID(chat.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding chat: %w", err)
	}
	if err := util.AtomicWriteFile(s.filePath(chat.ID), data, 0o600); err != nil {
		return fmt.Errorf("writing chat %s: %w", chat.ID, err)
	}
	return nil
}

// Delete removes the chat file.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.filePath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing chat %s: %w", id, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close(ctx context.Context) error {
	return nil
}

func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
