// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the authoritative conversation state.
//
// A Store owns every chat, the active chat pointer, the temporary-mode flags
// and the loading flag. Each operation runs under one mutex, so a mutation is
// a single atomic step. Reads return deep copies.
//
// Mutations of non-temporary chats hand a post-mutation snapshot to the
// Persister; temporary chats never reach it.
//
// # Usage
//
//	st := state.New(state.Options{Persister: gateway})
//	id, _ := st.AddChat(model.DefaultModelID, "")
//	_, _ = st.AddMessage(id, model.NewMessage(model.RoleUser, "hello there"))
package state
