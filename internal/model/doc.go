// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// This package defines the core domain types used throughout polychat for
// representing chats, their messages, file attachments and the static catalog
// of AI models a chat can be bound to.
//
// # Key Types
//
//   - Chat: Titled, ordered conversation bound to one model
//   - Message: Single turn with role, content, timestamp and attachments
//   - AIModel: Catalog entry (provider, capability flags, token budget)
//   - Attachment: Validated file payload (bytes + declared media type)
//
// # Usage
//
// Create a chat and append a message:
//
//	chat := model.NewChat(model.DefaultModelID, false)
//	chat.Messages = append(chat.Messages, model.NewMessage(model.RoleUser, "Hello!"))
//
// Look up a model from the catalog:
//
//	m, ok := model.GetModel("gpt-4o")
//	fmt.Println(m.Provider, m.SupportsImages)
package model
