// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is the placeholder title of a chat nobody has named yet.
	DefaultTitle = "New Chat"

	// TemporaryTitle is the title given to the temporary-session chat.
	TemporaryTitle = "Temporary Chat"

	// titleWords is how many words of the first message make up a derived title.
	titleWords = 6
)

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat holds a titled, ordered conversation bound to one model.
type Chat struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Messages  []Message `json:"messages" bson:"messages"`
	ModelID   string    `json:"modelId" bson:"modelId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`

	// Temporary is fixed at creation. Temporary chats are never persisted.
	Temporary bool `json:"temporary,omitempty" bson:"temporary,omitempty"`
}

// NewChat creates an empty chat with a generated ID and the default title.
func NewChat(modelID string, temporary bool) Chat {
	now := time.Now()
	return Chat{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  make([]Message, 0),
		ModelID:   modelID,
		CreatedAt: now,
		UpdatedAt: now,
		Temporary: temporary,
	}
}

// LastMessage returns the most recent message and false when the chat is empty.
func (c Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount returns the number of messages.
func (c Chat) MessageCount() int {
	return len(c.Messages)
}

// HasDefaultTitle reports whether the chat still carries the placeholder title.
func (c Chat) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// Clone creates a deep copy of the chat.
func (c Chat) Clone() Chat {
	clone := c
	clone.Messages = make([]Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// DeriveTitle builds a chat title from the first words of a message.
// Titles longer than six words are cut and marked with "...".
func DeriveTitle(content string) string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}
