// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// CONTENT KIND
// =============================================================================

// ContentKind tells a renderer how to interpret a message.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a chat.
//
// FileURLs and FileNames are index-aligned: both nil or both of equal length.
type Message struct {
	ID        string    `json:"id" bson:"id"`
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Attachments, encoded as data URLs
	FileURLs  []string `json:"fileUrls,omitempty" bson:"fileUrls,omitempty"`
	FileNames []string `json:"fileNames,omitempty" bson:"fileNames,omitempty"`

	// ContentType defaults to text; image messages carry ImageURL.
	ContentType ContentKind `json:"contentType,omitempty" bson:"contentType,omitempty"`
	ImageURL    string      `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
}

// NewMessage creates a text message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Timestamp:   time.Now(),
		ContentType: ContentText,
	}
}

// NewMessageWithFiles creates a text message carrying attachments.
// Attachment order is preserved in FileURLs and FileNames.
func NewMessageWithFiles(role Role, content string, files []EncodedFile) Message {
	msg := NewMessage(role, content)
	if len(files) == 0 {
		return msg
	}
	msg.FileURLs = make([]string, len(files))
	msg.FileNames = make([]string, len(files))
	for i, f := range files {
		msg.FileURLs[i] = f.URL
		msg.FileNames[i] = f.Name
	}
	return msg
}

// NewImageMessage creates an assistant message holding a rendered image.
func NewImageMessage(content, imageURL string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.ContentType = ContentImage
	msg.ImageURL = imageURL
	return msg
}

// Kind returns the content kind, treating an unset value as text.
func (m Message) Kind() ContentKind {
	if m.ContentType == "" {
		return ContentText
	}
	return m.ContentType
}

// HasAttachments reports whether the message carries any files.
func (m Message) HasAttachments() bool {
	return len(m.FileURLs) > 0
}

// AttachmentsAligned reports whether FileURLs and FileNames have equal length.
func (m Message) AttachmentsAligned() bool {
	return len(m.FileURLs) == len(m.FileNames)
}

// ImageAttachments returns the attachment URLs that hold inline images.
func (m Message) ImageAttachments() []string {
	var out []string
	for _, u := range m.FileURLs {
		if IsImageDataURL(u) {
			out = append(out, u)
		}
	}
	return out
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.FileURLs != nil {
		c.FileURLs = append([]string(nil), m.FileURLs...)
	}
	if m.FileNames != nil {
		c.FileNames = append([]string(nil), m.FileNames...)
	}
	return c
}
