// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
)

// flakyStore wraps a MemoryStore with injectable failures.
type flakyStore struct {
	*MemoryStore

	mu         sync.Mutex
	initFails  int
	initCalls  int
	saveErr    error
	saveDelay  time.Duration
	saveTitles []string
	closed     bool
}

func (f *flakyStore) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initFails > 0 {
		f.initFails--
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakyStore) Save(ctx context.Context, chat model.Chat) error {
	f.mu.Lock()
	delay, saveErr := f.saveDelay, f.saveErr
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if saveErr != nil {
		return saveErr
	}
	f.mu.Lock()
	f.saveTitles = append(f.saveTitles, chat.Title)
	f.mu.Unlock()
	return f.MemoryStore.Save(ctx, chat)
}

func (f *flakyStore) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newGateway(t *testing.T, store Store) (*Gateway, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(logger.NewHandler(&buf, logger.Options{Level: slog.LevelDebug, NoColor: true}))
	gw := NewGateway(store, GatewayOptions{Logger: log, WriteTimeout: 5 * time.Second})
	t.Cleanup(func() { _ = gw.Close(context.Background()) })
	return gw, &buf
}

func flush(t *testing.T, gw *Gateway) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, gw.Flush(ctx))
}

func TestGateway_InitializeRetriesUntilSuccess(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), initFails: 2}
	gw, logs := newGateway(t, store)
	ctx := context.Background()

	chats, ok := gw.LoadAll(ctx)
	assert.False(t, ok)
	assert.Empty(t, chats)
	assert.False(t, gw.Ready())

	assert.Error(t, gw.Initialize(ctx))
	assert.NoError(t, gw.Initialize(ctx))
	assert.NoError(t, gw.Initialize(ctx))
	assert.True(t, gw.Ready())
	assert.Equal(t, 3, store.initCalls, "no further Init after success")

	_, ok = gw.LoadAll(ctx)
	assert.True(t, ok)
	assert.Contains(t, logs.String(), "storage initialization failed")
}

func TestGateway_SyncOperations(t *testing.T) {
	store := NewMemoryStore()
	gw, _ := newGateway(t, store)
	ctx := context.Background()

	c := testChat("sync", time.Now())
	assert.True(t, gw.SaveChat(ctx, c))
	_, ok := store.Get(c.ID)
	assert.True(t, ok)

	assert.True(t, gw.DeleteChat(ctx, c.ID))
	assert.Equal(t, 0, store.Len())
}

func TestGateway_FailuresAreSwallowed(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), saveErr: errors.New("disk full")}
	gw, logs := newGateway(t, store)

	c := testChat("doomed", time.Now())
	assert.False(t, gw.SaveChat(context.Background(), c))

	gw.ScheduleSave(c)
	flush(t, gw)

	failed := gw.FailedWrites()
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].Key)
	assert.Contains(t, logs.String(), "chat save failed")
	assert.Contains(t, logs.String(), "disk full")
	assert.Contains(t, gw.Status(), "Failed: 1")
}

func TestGateway_ScheduledSavesKeepOrder(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), saveDelay: time.Millisecond}
	gw, _ := newGateway(t, store)

	c := testChat("v0", time.Now())
	titles := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}
	for _, title := range titles {
		c.Title = title
		gw.ScheduleSave(c)
	}
	flush(t, gw)

	assert.Equal(t, titles, store.saveTitles)
	got, ok := store.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, "v8", got.Title)
}

func TestGateway_ScheduleSaveSnapshots(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), saveDelay: 20 * time.Millisecond}
	gw, _ := newGateway(t, store)

	c := testChat("snapshot", time.Now())
	gw.ScheduleSave(c)
	c.Title = "mutated after scheduling"
	c.Messages[0].Content = "mutated"

	flush(t, gw)
	got, ok := store.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, "snapshot", got.Title)
	assert.Equal(t, "hello snapshot", got.Messages[0].Content)
}

func TestGateway_ScheduledDeleteAfterSave(t *testing.T) {
	store := NewMemoryStore()
	gw, _ := newGateway(t, store)

	c := testChat("gone", time.Now())
	gw.ScheduleSave(c)
	gw.ScheduleDelete(c.ID)
	flush(t, gw)

	assert.Equal(t, 0, store.Len())
}

func TestGateway_CloseFlushesAndCloses(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), saveDelay: 10 * time.Millisecond}
	gw := NewGateway(store, GatewayOptions{})

	c := testChat("last words", time.Now())
	gw.ScheduleSave(c)

	require.NoError(t, gw.Close(context.Background()))
	assert.True(t, store.closed)
	_, ok := store.Get(c.ID)
	assert.True(t, ok, "pending write flushed before close")

	// Writes after close are dropped, not panics.
	gw.ScheduleSave(c)
}
