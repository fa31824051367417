// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
package storage

import (
	"context"
	"sync"

	"github.com/jeranaias/polychat/internal/model"
)

// MemoryStore keeps chats in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string]model.Chat
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[string]model.Chat)}
}

// Init is a no-op.
func (s *MemoryStore) Init(ctx context.Context) error { return nil }

// LoadAll returns copies of every chat, newest first.
func (s *MemoryStore) LoadAll(ctx context.Context) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		chats = append(chats, c.Clone())
	}
	sortNewestFirst(chats)
	return chats, nil
}

// Save stores a copy of chat.
func (s *MemoryStore) Save(ctx context.Context, chat model.Chat) error {
	if chat.ID == "" {
		return ErrInvalidChatID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat.Clone()
	return nil
}

// Delete removes the chat.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// Get returns a copy of one chat.
func (s *MemoryStore) Get(id string) (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return model.Chat{}, false
	}
	return c.Clone(), true
}

// Len returns the number of stored chats.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}
