// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/polychat/internal/dispatch"
	"github.com/jeranaias/polychat/internal/export"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/provider"
	"github.com/jeranaias/polychat/internal/response"
	"github.com/jeranaias/polychat/internal/state"
	"github.com/jeranaias/polychat/internal/tasks"
)

func TestMain(m *testing.M) {
	ConfigureColor(true)
	os.Exit(m.Run())
}

// =============================================================================
// FIXTURES
// =============================================================================

// scriptedInput replays lines, then reports Ctrl+D.
type scriptedInput struct {
	mu      sync.Mutex
	lines   []string
	history []string
}

func (in *scriptedInput) Prompt(string) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.lines) == 0 {
		return "", io.EOF
	}
	line := in.lines[0]
	in.lines = in.lines[1:]
	return line, nil
}

func (in *scriptedInput) AppendHistory(item string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.history = append(in.history, item)
}

type invokeFunc func(ctx context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error)

func (f invokeFunc) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error) {
	return f(ctx, history, m)
}

type noImages struct{}

func (noImages) Materialize(context.Context, string) (string, error) {
	return "", errors.New("no network in tests")
}

// recorder counts scheduled saves.
type recorder struct {
	mu    sync.Mutex
	saves int
}

func (r *recorder) ScheduleSave(model.Chat) { r.mu.Lock(); r.saves++; r.mu.Unlock() }
func (r *recorder) ScheduleDelete(string)   {}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type fakeSync struct {
	flushed bool
	failed  []*tasks.Task
}

func (f *fakeSync) Flush(context.Context) error { f.flushed = true; return nil }
func (f *fakeSync) Status() string              { return "2 completed" }
func (f *fakeSync) FailedWrites() []*tasks.Task { return f.failed }

type harness struct {
	st    *state.Store
	sh    *Shell
	out   *bytes.Buffer
	in    *scriptedInput
	saves *recorder
}

func newHarness(t *testing.T, inv dispatch.Invoker, lines ...string) *harness {
	t.Helper()
	saves := &recorder{}
	st := state.New(state.Options{Persister: saves, DefaultModelID: "gpt-4o"})
	out := &bytes.Buffer{}
	orch := dispatch.New(dispatch.Options{
		State:    st,
		Invoker:  inv,
		Resolver: response.NewNormalizer(noImages{}, nil),
		Notifier: NewNoticePrinter(out),
	})
	in := &scriptedInput{lines: lines}
	sh := NewShell(Options{
		State:        st,
		Orchestrator: orch,
		Sync:         &fakeSync{},
		Input:        in,
		Out:          out,
		Quiet:        true,
	})
	return &harness{st: st, sh: sh, out: out, in: in, saves: saves}
}

func (h *harness) run(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.sh.Run(context.Background()))
	return h.out.String()
}

func replyWith(text string) dispatch.Invoker {
	return invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
		return provider.Text{Content: text}, nil
	})
}

// =============================================================================
// SENDING
// =============================================================================

func TestShellSendCreatesChat(t *testing.T) {
	h := newHarness(t, replyWith("Hi there"), "hello world")
	out := h.run(t)

	chats := h.st.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "gpt-4o", chats[0].ModelID)
	assert.Equal(t, "hello world", chats[0].Title)
	require.Len(t, chats[0].Messages, 2)
	assert.Equal(t, "Hi there", chats[0].Messages[1].Content)

	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "Hi there")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, []string{"hello world"}, h.in.history)
}

func TestShellProviderFailure(t *testing.T) {
	inv := invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
		return nil, errors.New("quota exceeded")
	})
	h := newHarness(t, inv, "hello")
	out := h.run(t)

	assert.Contains(t, out, "[Error] quota exceeded")
	assert.Contains(t, out, "Error: quota exceeded")

	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "Error: quota exceeded", chat.Messages[1].Content)
}

func TestShellInterruptStopsReply(t *testing.T) {
	started := make(chan struct{})
	inv := invokeFunc(func(ctx context.Context, _ []model.Message, _ model.AIModel) (provider.Outcome, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newHarness(t, inv, "write a long story")
	interrupts := make(chan os.Signal, 1)
	h.sh.interrupts = interrupts

	done := make(chan error, 1)
	go func() { done <- h.sh.Run(context.Background()) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never called")
	}
	interrupts <- os.Interrupt

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not return after interrupt")
	}

	assert.Contains(t, h.out.String(), "[Stopped]")
	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	assert.Len(t, chat.Messages, 1, "a stopped reply appends nothing")
}

func TestShellStaleInterruptIgnored(t *testing.T) {
	h := newHarness(t, replyWith("done"), "hello")
	interrupts := make(chan os.Signal, 1)
	interrupts <- os.Interrupt
	h.sh.interrupts = interrupts

	out := h.run(t)
	assert.NotContains(t, out, "[Stopped]")
	assert.Contains(t, out, "done")
}

// =============================================================================
// CHAT COMMANDS
// =============================================================================

func TestShellChatCommands(t *testing.T) {
	h := newHarness(t, replyWith("ok"),
		"/new claude-3-5-sonnet",
		"/rename Project notes",
		"/model gemini-1.5-pro",
		"/list",
		"/quit",
		"never read",
	)
	out := h.run(t)

	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, "Project notes", chat.Title)
	assert.Equal(t, "gemini-1.5-pro", chat.ModelID)

	assert.Contains(t, out, "New chat with Claude 3.5 Sonnet")
	assert.Contains(t, out, "Switched to model: Gemini 1.5 Pro")
	assert.Contains(t, out, "Project notes")
	assert.Equal(t, []string{"never read"}, h.in.lines)
}

func TestShellSwitchAndDelete(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	first, _ := h.st.AddChat("gpt-4o", "first chat")
	second, _ := h.st.AddChat("gpt-4o", "second chat")
	require.Equal(t, second, h.st.ActiveChatID())

	ctx := context.Background()
	require.NoError(t, h.sh.handleLine(ctx, "/switch 2"))
	assert.Equal(t, first, h.st.ActiveChatID())

	require.NoError(t, h.sh.handleLine(ctx, "/switch "+second[:8]))
	assert.Equal(t, second, h.st.ActiveChatID())

	require.NoError(t, h.sh.handleLine(ctx, "/delete"))
	assert.Equal(t, first, h.st.ActiveChatID())
	assert.Len(t, h.st.Chats(), 1)

	assert.Error(t, h.sh.handleLine(ctx, "/switch 9"))
	assert.Error(t, h.sh.handleLine(ctx, "/switch nope"))
}

func TestShellUnknownModel(t *testing.T) {
	h := newHarness(t, replyWith("ok"), "/new gpt-2", "/new", "/model mistral-large")
	out := h.run(t)

	assert.Contains(t, out, `unknown model "gpt-2"`)
	assert.Contains(t, out, "[Unknown model]")
	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", chat.ModelID)
}

func TestShellUnknownCommand(t *testing.T) {
	h := newHarness(t, replyWith("ok"), "/bogus", "/rename")
	out := h.run(t)
	assert.Contains(t, out, "unknown command: /bogus")
	assert.Contains(t, out, "[Usage] usage: /rename <title>")
}

func TestShellTemporaryMode(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	ctx := context.Background()

	require.NoError(t, h.sh.handleLine(ctx, "/temp on"))
	require.NoError(t, h.sh.handleLine(ctx, "secret question"))

	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	assert.True(t, chat.Temporary)
	assert.Zero(t, h.saves.count(), "temporary chats are never saved")

	assert.Error(t, h.sh.handleLine(ctx, "/new"), "one temporary chat at a time")

	require.NoError(t, h.sh.handleLine(ctx, "/temp"))
	assert.False(t, h.st.TemporaryMode())
	assert.Empty(t, h.st.Chats())
}

func TestShellDeleteTemporaryChat(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	ctx := context.Background()
	kept, _ := h.st.AddChat("gpt-4o", "kept chat")
	saves := h.saves.count()

	require.NoError(t, h.sh.handleLine(ctx, "/temp on"))
	require.NoError(t, h.sh.handleLine(ctx, "/delete"))
	assert.Contains(t, h.out.String(), "Temporary mode off")
	assert.False(t, h.st.TemporaryMode())
	assert.Equal(t, kept, h.st.ActiveChatID())

	// Re-entering temporary mode keeps later messages unsaved.
	require.NoError(t, h.sh.handleLine(ctx, "/temp on"))
	require.NoError(t, h.sh.handleLine(ctx, "still secret"))
	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	assert.True(t, chat.Temporary)
	assert.Equal(t, saves, h.saves.count())
}

func TestShellClearAndHistory(t *testing.T) {
	h := newHarness(t, replyWith("**bold** answer"), "question", "/history", "/clear")
	out := h.run(t)

	assert.Contains(t, out, "You")
	assert.Contains(t, out, "**bold** answer", "plain renderer leaves markdown as is")
	assert.Contains(t, out, "[Conversation cleared]")

	chat, ok := h.st.ActiveChat()
	require.True(t, ok)
	assert.Empty(t, chat.Messages)
	assert.Equal(t, "question", chat.Title)
}

// =============================================================================
// FILE COMMANDS
// =============================================================================

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestShellAttachAndSend(t *testing.T) {
	var seen []model.Message
	inv := invokeFunc(func(_ context.Context, history []model.Message, _ model.AIModel) (provider.Outcome, error) {
		seen = history
		return provider.Text{Content: "a cat"}, nil
	})
	img := writeFile(t, "cat.png", []byte("\x89PNG\r\n\x1a\n"))

	h := newHarness(t, inv, "/new claude-3-5-sonnet", `/attach "`+img+`"`, "/attach", "what is this?")
	out := h.run(t)

	assert.Contains(t, out, "[Attached] cat.png (image/png")
	require.Len(t, seen, 1)
	assert.Equal(t, []string{"cat.png"}, seen[0].FileNames)
	assert.True(t, strings.HasPrefix(seen[0].FileURLs[0], "data:image/png;base64,"))
	assert.Empty(t, h.sh.pending)
}

func TestShellUnsupportedAttachmentKept(t *testing.T) {
	called := false
	inv := invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
		called = true
		return provider.Text{Content: "x"}, nil
	})
	doc := writeFile(t, "notes.pdf", []byte("%PDF-1.4"))

	h := newHarness(t, inv, "/new gpt-4o", "/attach "+doc, "summarize")
	out := h.run(t)

	assert.Contains(t, out, "[Warning] GPT-4o does not accept notes.pdf")
	assert.Contains(t, out, "[Unsupported files]")
	assert.False(t, called)
	assert.Len(t, h.sh.pending, 1, "rejected attachments stay queued")

	chat, _ := h.st.ActiveChat()
	assert.Empty(t, chat.Messages)

	require.NoError(t, h.sh.handleLine(context.Background(), "/attach clear"))
	assert.Empty(t, h.sh.pending)
}

func TestShellExport(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, replyWith("Paris."), "capital of France?", "/export json --dir "+dir, "/export pdf")
	out := h.run(t)

	assert.Contains(t, out, "Exported to "+dir)
	assert.Contains(t, out, "[Usage] usage: /export")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	chat, err := export.ReadJSON(data)
	require.NoError(t, err)
	assert.Equal(t, h.st.ActiveChatID(), chat.ID)
	assert.Len(t, chat.Messages, 2)
}

func TestShellSync(t *testing.T) {
	h := newHarness(t, replyWith("ok"), "/sync")
	syncer := &fakeSync{failed: []*tasks.Task{tasks.NewTask("chat-1", "save chat chat-1", nil)}}
	h.sh.sync = syncer
	out := h.run(t)

	assert.True(t, syncer.flushed)
	assert.Contains(t, out, "[Storage] 2 completed")
	assert.Contains(t, out, "[Failed] save chat chat-1")
}

func TestCommandNamesIncludeAliases(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	names := h.sh.CommandNames()
	for _, want := range []string{"/new", "/list", "/switch", "/delete", "/rename", "/model", "/models",
		"/clear", "/temp", "/attach", "/export", "/sync", "/help", "/quit", "/q"} {
		assert.Contains(t, names, want)
	}
}
