// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides a background task system for write-behind work.
//
// Tasks carry a Key. Tasks sharing a key run one at a time in submission
// order; tasks with different keys may run concurrently. Persistence uses the
// chat ID as the key so a chat's saves and deletes land in the order they
// were issued.
//
// # Key Types
//
//   - Task: A unit of work with status and timing
//   - Queue: Task registry with history and completion notifications
//   - Runner: Keyed FIFO lanes with timeout, drain, and stop support
//   - TaskStatus: Queued, Running, Complete, Failed, Canceled
//
// # Usage
//
//	queue := tasks.NewQueue(100)
//	runner := tasks.NewRunner(queue, 4, 30*time.Second)
//	runner.Start()
//	defer runner.Stop()
//
//	_ = runner.Submit(tasks.NewTask(chatID, "save chat", func(ctx context.Context) error {
//	    return store.Save(ctx, chat)
//	}))
//	_ = runner.Drain(ctx)
package tasks
