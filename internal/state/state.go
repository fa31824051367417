// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the authoritative conversation state.
package state

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/polychat/internal/model"
)

// Errors returned by Store operations.
var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrTemporarySession = errors.New("temporary chat session is active")
	ErrEmptyTitle       = errors.New("chat title cannot be empty")
)

// Persister receives chat snapshots to persist. Calls must not block.
type Persister interface {
	ScheduleSave(chat model.Chat)
	ScheduleDelete(id string)
}

// Options configures a Store.
type Options struct {
	// Persister receives non-temporary chat snapshots. Nil disables persistence.
	Persister Persister

	// DefaultModelID binds new chats when the caller passes no model.
	DefaultModelID string

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a point-in-time copy of the whole state.
type Snapshot struct {
	Chats               []model.Chat
	ActiveChat          string
	TemporaryMode       bool
	TemporaryChatActive bool
	Loading             bool
}

// Store is the conversation state machine.
type Store struct {
	mu sync.Mutex

	chats      []model.Chat
	active     string
	tempMode   bool
	tempActive bool
	loading    bool

	persist      Persister
	defaultModel string
	now          func() time.Time
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.DefaultModelID == "" {
		opts.DefaultModelID = model.DefaultModelID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		chats:        make([]model.Chat, 0),
		persist:      opts.Persister,
		defaultModel: opts.DefaultModelID,
		now:          opts.Now,
	}
}

// =============================================================================
// CHAT LIFECYCLE
// =============================================================================

// AddChat creates a chat at the top of the list and makes it active. A
// non-empty initialMessage becomes the chat's first user message and names
// it. In temporary mode the chat is temporary. It returns false without
// changing anything while a temporary session is active.
func (s *Store) AddChat(modelID, initialMessage string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tempMode && s.tempActive {
		return "", false
	}
	if modelID == "" {
		modelID = s.defaultModel
	}

	chat := model.NewChat(modelID, s.tempMode)
	now := s.now()
	chat.CreatedAt, chat.UpdatedAt = now, now
	if initialMessage != "" {
		msg := model.NewMessage(model.RoleUser, initialMessage)
		msg.Timestamp = now
		chat.Messages = append(chat.Messages, msg)
		chat.Title = model.DeriveTitle(initialMessage)
	}
	if chat.Temporary {
		s.tempActive = true
	}

	s.chats = append([]model.Chat{chat}, s.chats...)
	s.active = chat.ID
	s.save(&s.chats[0])
	return chat.ID, true
}

// DeleteChat removes a chat. An active chat is replaced by the first
// remaining one. Deleting a temporary chat during a temporary session ends
// the session and leaves temporary mode, so later messages never land in a
// persisted chat under a temporary label. It returns false for an unknown ID.
func (s *Store) DeleteChat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	temporary := s.chats[i].Temporary
	s.chats = append(s.chats[:i], s.chats[i+1:]...)

	if temporary && s.tempActive {
		s.tempMode = false
		s.tempActive = false
		s.clearTemporaryLocked()
	}
	if s.active == id {
		s.repointActive()
	}
	if !temporary && s.persist != nil {
		s.persist.ScheduleDelete(id)
	}
	return true
}

// SetActiveChat switches the active chat.
func (s *Store) SetActiveChat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tempMode && s.tempActive {
		return ErrTemporarySession
	}
	if s.indexOf(id) < 0 {
		return ErrChatNotFound
	}
	s.active = id
	return nil
}

// LoadChats replaces every chat, typically with the persisted set at startup.
// The first chat becomes active.
func (s *Store) LoadChats(chats []model.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = make([]model.Chat, len(chats))
	for i, c := range chats {
		s.chats[i] = c.Clone()
	}
	s.active = ""
	s.repointActive()
}

// =============================================================================
// CHAT MUTATIONS
// =============================================================================

// AddMessage appends msg to a chat and returns the stored copy. The timestamp
// is clamped so messages never go back in time, and the first user message
// of a chat still carrying the default title names the chat.
func (s *Store) AddMessage(chatID string, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return model.Message{}, ErrChatNotFound
	}

	msg = msg.Clone()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if last, ok := chat.LastMessage(); ok && msg.Timestamp.Before(last.Timestamp) {
		msg.Timestamp = last.Timestamp
	}

	first := len(chat.Messages) == 0
	chat.Messages = append(chat.Messages, msg)
	if first && msg.Role == model.RoleUser && chat.HasDefaultTitle() {
		chat.Title = model.DeriveTitle(msg.Content)
	}
	s.touch(chat)
	s.save(chat)
	return msg.Clone(), nil
}

// RenameChat sets a chat's title.
func (s *Store) RenameChat(chatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return ErrChatNotFound
	}
	chat.Title = title
	s.touch(chat)
	s.save(chat)
	return nil
}

// UpdateChatModel rebinds a chat to another model. The caller validates the
// model against the catalog.
func (s *Store) UpdateChatModel(chatID, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return ErrChatNotFound
	}
	chat.ModelID = modelID
	s.touch(chat)
	s.save(chat)
	return nil
}

// ClearMessages empties a chat. The title is kept.
func (s *Store) ClearMessages(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(chatID)
	if chat == nil {
		return ErrChatNotFound
	}
	chat.Messages = make([]model.Message, 0)
	s.touch(chat)
	s.save(chat)
	return nil
}

// =============================================================================
// TEMPORARY MODE
// =============================================================================

// SetTemporaryMode toggles temporary mode.
//
// Turning it on starts a session: the existing temporary chat, or a new one
// titled "Temporary Chat", becomes active. Turning it off ends the session
// and removes every temporary chat.
func (s *Store) SetTemporaryMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tempMode = on
	if !on {
		s.tempActive = false
		s.clearTemporaryLocked()
		return
	}
	if s.tempActive {
		return
	}

	s.tempActive = true
	for _, c := range s.chats {
		if c.Temporary {
			s.active = c.ID
			return
		}
	}

	chat := model.NewChat(s.defaultModel, true)
	now := s.now()
	chat.CreatedAt, chat.UpdatedAt = now, now
	chat.Title = model.TemporaryTitle
	s.chats = append([]model.Chat{chat}, s.chats...)
	s.active = chat.ID
}

// ClearTemporaryChats removes every temporary chat and ends the session.
func (s *Store) ClearTemporaryChats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tempActive = false
	s.clearTemporaryLocked()
}

func (s *Store) clearTemporaryLocked() {
	kept := s.chats[:0]
	for _, c := range s.chats {
		if !c.Temporary {
			kept = append(kept, c)
		}
	}
	// Drop references held past the new length.
	for i := len(kept); i < len(s.chats); i++ {
		s.chats[i] = model.Chat{}
	}
	s.chats = kept

	if s.active != "" && s.indexOf(s.active) < 0 {
		s.repointActive()
	}
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// Chat returns a copy of one chat.
func (s *Store) Chat(id string) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.find(id)
	if chat == nil {
		return model.Chat{}, false
	}
	return chat.Clone(), true
}

// Chats returns copies of every chat in display order.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneChats()
}

// ActiveChat returns a copy of the active chat.
func (s *Store) ActiveChat() (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return model.Chat{}, false
	}
	chat := s.find(s.active)
	if chat == nil {
		return model.Chat{}, false
	}
	return chat.Clone(), true
}

// ActiveChatID returns the active chat ID, or "".
func (s *Store) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TemporaryMode reports the temporary-mode flag.
func (s *Store) TemporaryMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempMode
}

// Loading reports the loading flag.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Chats:               s.cloneChats(),
		ActiveChat:          s.active,
		TemporaryMode:       s.tempMode,
		TemporaryChatActive: s.tempActive,
		Loading:             s.loading,
	}
}

// =============================================================================
// HELPERS (lock held)
// =============================================================================

func (s *Store) indexOf(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) find(id string) *model.Chat {
	if i := s.indexOf(id); i >= 0 {
		return &s.chats[i]
	}
	return nil
}

func (s *Store) repointActive() {
	if len(s.chats) > 0 {
		s.active = s.chats[0].ID
	} else {
		s.active = ""
	}
}

// touch advances UpdatedAt strictly, even when the clock has not moved.
func (s *Store) touch(chat *model.Chat) {
	now := s.now()
	if !now.After(chat.UpdatedAt) {
		now = chat.UpdatedAt.Add(time.Millisecond)
	}
	chat.UpdatedAt = now
}

// save hands a snapshot of a non-temporary chat to the persister.
func (s *Store) save(chat *model.Chat) {
	if chat.Temporary || s.persist == nil {
		return
	}
	s.persist.ScheduleSave(chat.Clone())
}

func (s *Store) cloneChats() []model.Chat {
	out := make([]model.Chat, len(s.chats))
	for i := range s.chats {
		out[i] = s.chats[i].Clone()
	}
	return out
}
