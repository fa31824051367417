// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/provider"
	"github.com/jeranaias/polychat/internal/response"
	"github.com/jeranaias/polychat/internal/state"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type invokeFunc func(ctx context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error)

func (f invokeFunc) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error) {
	return f(ctx, history, m)
}

type materializeFunc func(ctx context.Context, url string) (string, error)

func (f materializeFunc) Materialize(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *noticeLog) all() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

type fixture struct {
	st      *state.Store
	orch    *Orchestrator
	notices *noticeLog
}

func newFixture(t *testing.T, inv Invoker) *fixture {
	t.Helper()
	st := state.New(state.Options{})
	notices := &noticeLog{}
	images := materializeFunc(func(_ context.Context, url string) (string, error) {
		return "data:image/png;base64,aGVsbG8=", nil
	})
	orch := New(Options{
		State:    st,
		Invoker:  inv,
		Resolver: response.NewNormalizer(images, nil),
		Notifier: notices,
	})
	return &fixture{st: st, orch: orch, notices: notices}
}

func (f *fixture) newChat(t *testing.T, modelID string) string {
	t.Helper()
	id, ok := f.st.AddChat(modelID, "")
	require.True(t, ok)
	return id
}

func (f *fixture) messages(t *testing.T, id string) []model.Message {
	t.Helper()
	chat, ok := f.st.Chat(id)
	require.True(t, ok)
	return chat.Messages
}

func replyWith(text string) Invoker {
	return invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
		return provider.Text{Content: text}, nil
	})
}

func pngAttachment() model.Attachment {
	return model.Attachment{Name: "cat.png", MediaType: "image/png", Data: []byte("png")}
}

func pdfAttachment() model.Attachment {
	return model.Attachment{Name: "notes.pdf", MediaType: "application/pdf", Data: []byte("%PDF")}
}

// =============================================================================
// SEND
// =============================================================================

func TestSendTextReply(t *testing.T) {
	var seen []model.Message
	inv := invokeFunc(func(_ context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error) {
		seen = history
		assert.Equal(t, "gpt-4o", m.ID)
		return provider.Text{Content: "Paris."}, nil
	})
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "Capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, turn.Phase)
	assert.Equal(t, "Paris.", turn.Reply.Content)
	assert.Equal(t, model.RoleAssistant, turn.Reply.Role)

	require.Len(t, seen, 1)
	assert.Equal(t, "Capital of France?", seen[0].Content)

	msgs := f.messages(t, id)
	require.Len(t, msgs, 2)
	assert.Equal(t, turn.User.ID, msgs[0].ID)
	assert.Equal(t, turn.Reply.ID, msgs[1].ID)
	assert.Equal(t, PhaseIdle, f.orch.Phase(id))
	assert.Empty(t, f.notices.all())

	chat, _ := f.st.Chat(id)
	assert.Equal(t, "Capital of France?", chat.Title)
}

func TestSendForwardsFullHistory(t *testing.T) {
	var lengths []int
	inv := invokeFunc(func(_ context.Context, history []model.Message, _ model.AIModel) (provider.Outcome, error) {
		lengths = append(lengths, len(history))
		return provider.Text{Content: "ok"}, nil
	})
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	for i := 0; i < 3; i++ {
		_, err := f.orch.Send(context.Background(), id, Request{Text: "again"})
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 3, 5}, lengths)
}

func TestSendEmptyReplyBecomesNoResponse(t *testing.T) {
	f := newFixture(t, replyWith(""))
	id := f.newChat(t, "gpt-4o")

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, response.NoResponseText, turn.Reply.Content)
}

func TestSendGeneratedImage(t *testing.T) {
	inv := invokeFunc(func(_ context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error) {
		return provider.GeneratedImage{URL: "https://images.example/cat.png"}, nil
	})
	f := newFixture(t, inv)
	id := f.newChat(t, "dall-e-3")

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "a cat in a hat"})
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, turn.Phase)
	assert.Equal(t, model.ContentImage, turn.Reply.Kind())
	assert.Equal(t, response.ImageSuccessText, turn.Reply.Content)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", turn.Reply.ImageURL)
}

func TestSendWithAttachments(t *testing.T) {
	var last model.Message
	inv := invokeFunc(func(_ context.Context, history []model.Message, _ model.AIModel) (provider.Outcome, error) {
		last = history[len(history)-1]
		return provider.Text{Content: "A cat."}, nil
	})
	f := newFixture(t, inv)
	id := f.newChat(t, "claude-3-5-sonnet")

	turn, err := f.orch.Send(context.Background(), id, Request{
		Attachments: []model.Attachment{pngAttachment(), pdfAttachment()},
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, turn.Phase)

	assert.Equal(t, []string{"cat.png", "notes.pdf"}, last.FileNames)
	require.Len(t, last.FileURLs, 2)
	assert.True(t, model.IsImageDataURL(last.FileURLs[0]))
	assert.True(t, last.AttachmentsAligned())
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		modelID string
		req     Request
		field   string
		reason  string
	}{
		{
			name:    "blank text without attachments",
			modelID: "gpt-4o",
			req:     Request{Text: "   \n"},
			field:   "message",
		},
		{
			name:    "image on text-only model",
			modelID: "llama-3-70b",
			req:     Request{Text: "look", Attachments: []model.Attachment{pngAttachment()}},
			field:   "attachments",
			reason:  "The selected model doesn't support images",
		},
		{
			name:    "document on image-only model",
			modelID: "gpt-4o",
			req:     Request{Text: "read", Attachments: []model.Attachment{pdfAttachment()}},
			field:   "attachments",
			reason:  "The selected model doesn't support documents",
		},
		{
			name:    "both on text-only model",
			modelID: "llama-3-70b",
			req:     Request{Attachments: []model.Attachment{pngAttachment(), pdfAttachment()}},
			field:   "attachments",
			reason:  "The selected model doesn't support images or documents",
		},
		{
			name:    "model missing from catalog",
			modelID: "no-such-model",
			req:     Request{Text: "hi"},
			field:   "model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			inv := invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
				called = true
				return provider.Text{Content: "x"}, nil
			})
			f := newFixture(t, inv)
			id := f.newChat(t, tt.modelID)
			before, _ := f.st.Chat(id)

			_, err := f.orch.Send(context.Background(), id, tt.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.True(t, IsValidation(err))
			assert.Equal(t, tt.field, ve.Field)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, ve.Reason)
			}
			assert.False(t, called)

			after, _ := f.st.Chat(id)
			assert.Equal(t, before, after)

			notices := f.notices.all()
			require.Len(t, notices, 1)
			assert.Equal(t, VariantWarning, notices[0].Variant)
			assert.Equal(t, ve.Title, notices[0].Title)
		})
	}
}

func TestSendUnknownChat(t *testing.T) {
	f := newFixture(t, replyWith("x"))
	_, err := f.orch.Send(context.Background(), "missing", Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSendProviderFailure(t *testing.T) {
	inv := invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
		return nil, &provider.Error{
			Kind:     provider.KindMissingCredential,
			Provider: model.ProviderOpenAI,
			Detail:   "OpenAI API key is missing. Please set the OPENAI_API_KEY environment variable.",
		}
	})
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, turn.Phase)
	assert.ErrorIs(t, turn.Err, provider.ErrMissingCredential)
	assert.Equal(t, "Error: OpenAI API key is missing. Please set the OPENAI_API_KEY environment variable.", turn.Reply.Content)

	msgs := f.messages(t, id)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)

	notices := f.notices.all()
	require.Len(t, notices, 1)
	assert.Equal(t, Notice{
		Title:       "Error",
		Description: "OpenAI API key is missing. Please set the OPENAI_API_KEY environment variable.",
		Variant:     VariantDestructive,
	}, notices[0])
	assert.Equal(t, PhaseIdle, f.orch.Phase(id))
}

func TestSendUnsupportedProvider(t *testing.T) {
	f := newFixture(t, provider.NewRegistry())
	f.orch.lookup = func(id string) (model.AIModel, bool) {
		return model.AIModel{ID: id, Provider: model.Provider("mistral")}, true
	}
	id := f.newChat(t, "mistral-large")

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "bonjour"})
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, turn.Phase)
	assert.Equal(t, "Error: Unsupported model provider: mistral", turn.Reply.Content)
}

func TestSendImageFetchFailureIsReply(t *testing.T) {
	inv := invokeFunc(func(context.Context, []model.Message, model.AIModel) (provider.Outcome, error) {
		return provider.GeneratedImage{URL: "https://images.example/gone.png"}, nil
	})
	f := newFixture(t, inv)
	f.orch.resolver = response.NewNormalizer(materializeFunc(func(_ context.Context, url string) (string, error) {
		return "", &response.FetchError{URL: url, Status: 404}
	}), nil)
	id := f.newChat(t, "dall-e-3")

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "a dog"})
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, turn.Phase)
	assert.Contains(t, turn.Reply.Content, "Error processing image: ")
	assert.Empty(t, f.notices.all())
}

// =============================================================================
// CANCELLATION
// =============================================================================

// blockingInvoker signals started and then waits for ctx or release.
type blockingInvoker struct {
	started chan struct{}
	release chan struct{}
	honour  bool
}

func newBlockingInvoker(honour bool) *blockingInvoker {
	return &blockingInvoker{started: make(chan struct{}, 8), release: make(chan struct{}), honour: honour}
}

func (b *blockingInvoker) Invoke(ctx context.Context, _ []model.Message, m model.AIModel) (provider.Outcome, error) {
	b.started <- struct{}{}
	if b.honour {
		select {
		case <-ctx.Done():
			return nil, &provider.Error{Kind: provider.KindCancelled, Provider: m.Provider, Err: ctx.Err()}
		case <-b.release:
		}
	} else {
		<-b.release
	}
	return provider.Text{Content: "late reply"}, nil
}

func sendAsync(f *fixture, id string, text string) <-chan Turn {
	out := make(chan Turn, 1)
	go func() {
		turn, _ := f.orch.Send(context.Background(), id, Request{Text: text})
		out <- turn
	}()
	return out
}

func waitTurn(t *testing.T, ch <-chan Turn) Turn {
	t.Helper()
	select {
	case turn := <-ch:
		return turn
	case <-time.After(5 * time.Second):
		t.Fatal("send did not finish")
		return Turn{}
	}
}

func waitStarted(t *testing.T, b *blockingInvoker) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("invoker never started")
	}
}

func TestStopCancelsFlight(t *testing.T) {
	inv := newBlockingInvoker(true)
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	done := sendAsync(f, id, "long question")
	waitStarted(t, inv)
	assert.Equal(t, PhaseSending, f.orch.Phase(id))

	assert.True(t, f.orch.Stop(id))
	assert.Equal(t, PhaseIdle, f.orch.Phase(id))

	turn := waitTurn(t, done)
	assert.True(t, turn.Cancelled())
	assert.Len(t, f.messages(t, id), 1)
	assert.Empty(t, f.notices.all())
	assert.False(t, f.orch.Stop(id))
}

func TestStopDiscardsLateReply(t *testing.T) {
	inv := newBlockingInvoker(false)
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	done := sendAsync(f, id, "question")
	waitStarted(t, inv)
	require.True(t, f.orch.Stop(id))
	close(inv.release)

	turn := waitTurn(t, done)
	assert.Equal(t, PhaseCancelling, turn.Phase)
	msgs := f.messages(t, id)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestSendBusy(t *testing.T) {
	inv := newBlockingInvoker(true)
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	done := sendAsync(f, id, "first")
	waitStarted(t, inv)

	_, err := f.orch.Send(context.Background(), id, Request{Text: "second"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, f.messages(t, id), 1)

	f.orch.Stop(id)
	waitTurn(t, done)
}

func TestSupersededFlightAppendsNothing(t *testing.T) {
	first := newBlockingInvoker(false)
	var calls int
	var mu sync.Mutex
	inv := invokeFunc(func(ctx context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return first.Invoke(ctx, history, m)
		}
		return provider.Text{Content: "second reply"}, nil
	})
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	done := sendAsync(f, id, "first")
	waitStarted(t, first)
	require.True(t, f.orch.Stop(id))

	turn, err := f.orch.Send(context.Background(), id, Request{Text: "second"})
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, turn.Phase)

	close(first.release)
	assert.True(t, waitTurn(t, done).Cancelled())

	var contents []string
	for _, m := range f.messages(t, id) {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "second", "second reply"}, contents)
}

func TestParentContextCancellation(t *testing.T) {
	inv := newBlockingInvoker(true)
	f := newFixture(t, inv)
	id := f.newChat(t, "gpt-4o")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Turn, 1)
	go func() {
		turn, _ := f.orch.Send(ctx, id, Request{Text: "hi"})
		done <- turn
	}()
	waitStarted(t, inv)
	cancel()

	assert.True(t, waitTurn(t, done).Cancelled())
	assert.Equal(t, PhaseIdle, f.orch.Phase(id))
}

func TestStopAll(t *testing.T) {
	inv := newBlockingInvoker(true)
	f := newFixture(t, inv)
	a := f.newChat(t, "gpt-4o")
	b := f.newChat(t, "gemini-1.5-pro")

	doneA := sendAsync(f, a, "one")
	doneB := sendAsync(f, b, "two")
	waitStarted(t, inv)
	waitStarted(t, inv)

	assert.Equal(t, 2, f.orch.StopAll())
	assert.True(t, waitTurn(t, doneA).Cancelled())
	assert.True(t, waitTurn(t, doneB).Cancelled())
	assert.Equal(t, 0, f.orch.StopAll())
}

func TestChatsDispatchIndependently(t *testing.T) {
	inv := newBlockingInvoker(true)
	f := newFixture(t, inv)
	slow := f.newChat(t, "gpt-4o")
	done := sendAsync(f, slow, "slow")
	waitStarted(t, inv)

	// A second chat with its own invoker is unaffected by the first flight.
	fast := f.newChat(t, "gpt-4o")
	f.orch.invoker = replyWith("fast reply")
	turn, err := f.orch.Send(context.Background(), fast, Request{Text: "quick"})
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, turn.Phase)
	assert.Equal(t, PhaseSending, f.orch.Phase(slow))

	f.orch.Stop(slow)
	waitTurn(t, done)
}

// =============================================================================
// MODEL CHANGES
// =============================================================================

func TestChangeModel(t *testing.T) {
	f := newFixture(t, replyWith("x"))
	id := f.newChat(t, "gpt-4o")

	require.NoError(t, f.orch.ChangeModel(id, "claude-3-haiku"))
	chat, _ := f.st.Chat(id)
	assert.Equal(t, "claude-3-haiku", chat.ModelID)

	err := f.orch.ChangeModel(id, "gpt-99")
	assert.True(t, IsValidation(err))
	chat, _ = f.st.Chat(id)
	assert.Equal(t, "claude-3-haiku", chat.ModelID)

	assert.ErrorIs(t, f.orch.ChangeModel("missing", "gpt-4o"), ErrChatNotFound)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "sending", PhaseSending.String())
	assert.Equal(t, "cancelling", PhaseCancelling.String())
	assert.Equal(t, "resolved", PhaseResolved.String())
	assert.Equal(t, "failed", PhaseFailed.String())
	assert.False(t, errors.Is(ErrBusy, ErrChatNotFound))
}
