// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
//
// A Store is a document backend keyed by chat ID. Backends:
//
//   - FileStore: one JSON file per chat under a directory
//   - SQLStore: SQLite (modernc.org/sqlite) or Postgres (bun pgdriver)
//   - MongoStore: a MongoDB collection, one document per chat
//   - MemoryStore: in-process, for tests and persistence-disabled runs
//
// The Gateway sits in front of a Store. It connects lazily, never surfaces
// errors to the conversation layer, and runs scheduled writes in the
// background with per-chat ordering.
//
// # Usage
//
//	store, err := storage.Open(storage.Config{Backend: storage.BackendSQLite, SQLitePath: path})
//	gw := storage.NewGateway(store, storage.GatewayOptions{Logger: log})
//	defer gw.Close(ctx)
//
//	chats, ok := gw.LoadAll(ctx)
//	gw.ScheduleSave(chat)
package storage
