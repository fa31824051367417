// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
)

// testChat builds a chat with millisecond timestamps so every backend can
// round-trip it exactly.
func testChat(title string, created time.Time) model.Chat {
	created = created.UTC().Truncate(time.Millisecond)
	c := model.NewChat(model.DefaultModelID, false)
	c.Title = title
	c.CreatedAt = created
	c.UpdatedAt = created

	msg := model.NewMessageWithFiles(model.RoleUser, "hello "+title, []model.EncodedFile{
		{Name: "a.png", URL: "data:image/png;base64,iVBORw=="},
	})
	msg.Timestamp = created
	c.Messages = append(c.Messages, msg)
	return c
}

var chatDiff = []cmp.Option{cmpopts.EquateEmpty()}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(logger.NewHandler(&buf, logger.Options{Level: slog.LevelDebug, NoColor: true})), &buf
}

// runStoreSuite exercises the Store contract against one backend.
func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx), "Init must be idempotent")
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	chats, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, chats)

	base := time.Now().Add(-time.Hour)
	older := testChat("older", base)
	newer := testChat("newer", base.Add(time.Minute))

	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	chats, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID, "newest first")
	if diff := cmp.Diff(older, chats[1], chatDiff...); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Upsert replaces the whole document.
	reply := model.NewMessage(model.RoleAssistant, "hi back")
	reply.Timestamp = older.CreatedAt.Add(time.Second)
	older.Messages = append(older.Messages, reply)
	older.Title = "renamed"
	older.UpdatedAt = reply.Timestamp
	require.NoError(t, store.Save(ctx, older))

	chats, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	if diff := cmp.Diff(older, chats[1], chatDiff...); diff != "" {
		t.Errorf("upsert mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, store.Delete(ctx, older.ID))
	require.NoError(t, store.Delete(ctx, older.ID), "deleting a missing chat is not an error")

	chats, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, newer.ID, chats[0].ID)
}

// =============================================================================
// BACKEND SUITES
// =============================================================================

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	runStoreSuite(t, NewFileStore(filepath.Join(t.TempDir(), "chats"), nil))
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, NewSQLiteStore(filepath.Join(t.TempDir(), "db", "chats.db"), nil))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POLYCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLYCHAT_TEST_POSTGRES_DSN not set")
	}
	store := NewPostgresStore(dsn, nil)
	require.NoError(t, store.Init(context.Background()))
	db, _ := store.conn()
	_, err := db.Exec(`DELETE FROM chats`)
	require.NoError(t, err)
	runStoreSuite(t, store)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("POLYCHAT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("POLYCHAT_TEST_MONGO_URI not set")
	}
	store := NewMongoStore(uri, "polychat_test", "chats_"+time.Now().Format("150405"))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() {
		coll, err := store.collectionHandle()
		if err == nil {
			_ = coll.Drop(context.Background())
		}
	})
	runStoreSuite(t, store)
}

// =============================================================================
// BACKEND-SPECIFIC TESTS
// =============================================================================

func TestFileStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	log, buf := bufferLogger()
	store := NewFileStore(dir, log)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))

	good := testChat("good", time.Now())
	require.NoError(t, store.Save(ctx, good))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	chats, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, good.ID, chats[0].ID)
	assert.Contains(t, buf.String(), "skipping corrupt chat file")
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", `a\b`, "a/b"} {
		c := testChat("x", time.Now())
		c.ID = id
		assert.ErrorIs(t, store.Save(ctx, c), ErrInvalidChatID, id)
		assert.ErrorIs(t, store.Delete(ctx, id), ErrInvalidChatID, id)
	}
}

func TestFileStore_MissingDirLoadsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "never-created"), nil)
	chats, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestSQLStore_RequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "chats.db"), nil)
	ctx := context.Background()

	_, err := store.LoadAll(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, store.Save(ctx, testChat("x", time.Now())), ErrNotInitialized)
	assert.ErrorIs(t, store.Delete(ctx, "x"), ErrNotInitialized)
	assert.NoError(t, store.Close(ctx))
}

func TestSQLStore_LogsThroughInjectedLogger(t *testing.T) {
	log, buf := bufferLogger()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "chats.db"), log)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close(ctx) })
	assert.Contains(t, buf.String(), "applied chat schema migrations")

	good := testChat("good", time.Now())
	require.NoError(t, store.Save(ctx, good))
	db, err := store.conn()
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO chats (id, created_at, updated_at, doc) VALUES ('bad', 0, 0, '{not json')`)
	require.NoError(t, err)

	chats, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, good.ID, chats[0].ID)
	assert.Contains(t, buf.String(), "skipping corrupt chat row")
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := NewPostgresStore("postgres://unused", nil)
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := NewSQLiteStore("unused.db", nil)
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestMongoStore_Defaults(t *testing.T) {
	s := NewMongoStore("mongodb://localhost:27017", "", "")
	assert.Equal(t, "chatapp", s.database)
	assert.Equal(t, "chats", s.collection)

	_, err := s.LoadAll(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr error
	}{
		{"file", Config{Backend: BackendFile, Dir: dir}, &FileStore{}, nil},
		{"default is file", Config{Dir: dir}, &FileStore{}, nil},
		{"sqlite", Config{Backend: BackendSQLite, SQLitePath: filepath.Join(dir, "c.db")}, &SQLStore{}, nil},
		{"postgres", Config{Backend: BackendPostgres, PostgresDSN: "postgres://x"}, &SQLStore{}, nil},
		{"mongo", Config{Backend: BackendMongo, MongoURI: "mongodb://x"}, &MongoStore{}, nil},
		{"memory", Config{Backend: BackendMemory}, &MemoryStore{}, nil},
		{"file without dir", Config{Backend: BackendFile}, nil, ErrMissingSetting},
		{"mongo without uri", Config{Backend: BackendMongo}, nil, ErrMissingSetting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}

	_, err := Open(Config{Backend: "cassandra"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingSetting))
}
