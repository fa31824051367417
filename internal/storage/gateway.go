// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/tasks"
)

// GatewayOptions tunes a Gateway. Zero values pick defaults.
type GatewayOptions struct {
	// Lanes is the number of concurrent writers (default 4)
	Lanes int

	// WriteTimeout bounds each background write (default 30s)
	WriteTimeout time.Duration

	// History is how many finished writes stay inspectable (default 100)
	History int

	Logger *slog.Logger
}

// Gateway is the only path from the conversation layer to a Store.
//
// It connects on first use and retries the connection on every later call
// until one succeeds. Failures are logged and reported as false, never as
// errors, so persistence trouble cannot break a conversation.
type Gateway struct {
	store  Store
	runner *tasks.Runner
	log    *slog.Logger

	initMu sync.Mutex
	ready  bool
}

// NewGateway wraps store and starts the background writers.
func NewGateway(store Store, opts GatewayOptions) *Gateway {
	if opts.Lanes <= 0 {
		opts.Lanes = 4
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.History <= 0 {
		opts.History = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	runner := tasks.NewRunner(tasks.NewQueue(opts.History), opts.Lanes, opts.WriteTimeout)
	runner.Start()

	return &Gateway{
		store:  store,
		runner: runner,
		log:    opts.Logger.With("component", "storage"),
	}
}

// =============================================================================
// CONNECTION
// =============================================================================

// Initialize connects the store. It is idempotent once it has succeeded and
// retries on every call until then.
func (g *Gateway) Initialize(ctx context.Context) error {
	g.initMu.Lock()
	defer g.initMu.Unlock()

	if g.ready {
		return nil
	}
	if err := g.store.Init(ctx); err != nil {
		g.log.Warn("storage initialization failed", logger.Err(err))
		return err
	}
	g.ready = true
	g.log.Debug("storage initialized")
	return nil
}

// Ready reports whether Initialize has succeeded.
func (g *Gateway) Ready() bool {
	g.initMu.Lock()
	defer g.initMu.Unlock()
	return g.ready
}

// =============================================================================
// SYNCHRONOUS OPERATIONS
// =============================================================================

// LoadAll fetches every stored chat, newest first. On failure it returns an
// empty list and false.
func (g *Gateway) LoadAll(ctx context.Context) ([]model.Chat, bool) {
	if err := g.Initialize(ctx); err != nil {
		return []model.Chat{}, false
	}
	chats, err := g.store.LoadAll(ctx)
	if err != nil {
		g.log.Error("loading chats failed", logger.Err(err))
		return []model.Chat{}, false
	}
	return chats, true
}

// SaveChat upserts chat and reports success.
func (g *Gateway) SaveChat(ctx context.Context, chat model.Chat) bool {
	return g.report("save", chat.ID, g.save(ctx, chat)) == nil
}

// DeleteChat removes the chat and reports success.
func (g *Gateway) DeleteChat(ctx context.Context, id string) bool {
	return g.report("delete", id, g.delete(ctx, id)) == nil
}

// =============================================================================
// BACKGROUND OPERATIONS
// =============================================================================

// ScheduleSave queues an upsert of a snapshot of chat and returns at once.
// Writes for the same chat apply in the order they were scheduled.
func (g *Gateway) ScheduleSave(chat model.Chat) {
	snapshot := chat.Clone()
	g.submit(snapshot.ID, "save chat", func(ctx context.Context) error {
		return g.report("save", snapshot.ID, g.save(ctx, snapshot))
	})
}

// ScheduleDelete queues a delete and returns at once.
func (g *Gateway) ScheduleDelete(id string) {
	g.submit(id, "delete chat", func(ctx context.Context) error {
		return g.report("delete", id, g.delete(ctx, id))
	})
}

// Flush waits for every scheduled write to finish or ctx to end.
func (g *Gateway) Flush(ctx context.Context) error {
	return g.runner.Drain(ctx)
}

// Status summarizes background write activity.
func (g *Gateway) Status() string {
	return g.runner.Queue().Summary()
}

// FailedWrites returns the background writes that failed and are still in
// history.
func (g *Gateway) FailedWrites() []*tasks.Task {
	return g.runner.Queue().Failed()
}

// Close flushes pending writes, stops the writers and closes the store.
func (g *Gateway) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := g.Flush(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	g.runner.Stop()
	if err := g.store.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// =============================================================================
// HELPERS
// =============================================================================

func (g *Gateway) save(ctx context.Context, chat model.Chat) error {
	if err := g.Initialize(ctx); err != nil {
		return err
	}
	return g.store.Save(ctx, chat)
}

func (g *Gateway) delete(ctx context.Context, id string) error {
	if err := g.Initialize(ctx); err != nil {
		return err
	}
	return g.store.Delete(ctx, id)
}

func (g *Gateway) submit(key, description string, fn tasks.Func) {
	if err := g.runner.Submit(tasks.NewTask(key, description, fn)); err != nil {
		g.log.Warn("dropping write", "op", description, "chat", key, logger.Err(err))
	}
}

// report logs a failed operation and passes err through.
func (g *Gateway) report(op, id string, err error) error {
	if err != nil {
		g.log.Error("chat "+op+" failed", "chat", id, logger.Err(err))
	}
	return err
}
