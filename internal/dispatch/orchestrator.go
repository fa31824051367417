// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch sends a chat's conversation to its model and records the
// reply.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/provider"
	"github.com/jeranaias/polychat/internal/state"
)

// =============================================================================
// PHASES
// =============================================================================

// Phase is the per-chat dispatch phase. Only PhaseIdle and PhaseSending are
// visible between calls; the others describe how a turn ended.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseCancelling
	PhaseResolved
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseCancelling:
		return "cancelling"
	case PhaseResolved:
		return "resolved"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Invoker calls a provider. *provider.Registry satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, history []model.Message, m model.AIModel) (provider.Outcome, error)
}

// Resolver turns an outcome into an assistant message. *response.Normalizer
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, outcome provider.Outcome) (model.Message, error)
}

// Options configures an Orchestrator.
type Options struct {
	State    *state.Store
	Invoker  Invoker
	Resolver Resolver
	Notifier Notifier
	Logger   *slog.Logger

	// Lookup finds a model by ID. Defaults to model.GetModel.
	Lookup func(id string) (model.AIModel, bool)
}

// Request is one user turn.
type Request struct {
	Text        string
	Attachments []model.Attachment
}

// Turn reports how a Send ended.
type Turn struct {
	ChatID string
	Model  model.AIModel

	// Phase is PhaseResolved, PhaseFailed or PhaseCancelling.
	Phase Phase

	// User is the appended user message.
	User model.Message

	// Reply is the appended assistant message. Zero when cancelled.
	Reply model.Message

	// Err is the failure behind a PhaseFailed turn.
	Err error
}

// Cancelled reports whether the turn was stopped or superseded.
func (t Turn) Cancelled() bool { return t.Phase == PhaseCancelling }

// flight is one in-progress Send.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs sends, stops and model switches against a state.Store.
type Orchestrator struct {
	state    *state.Store
	invoker  Invoker
	resolver Resolver
	notifier Notifier
	lookup   func(string) (model.AIModel, bool)
	log      *slog.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Lookup == nil {
		opts.Lookup = model.GetModel
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		state:    opts.State,
		invoker:  opts.Invoker,
		resolver: opts.Resolver,
		notifier: opts.Notifier,
		lookup:   opts.Lookup,
		log:      opts.Logger,
		flights:  make(map[string]*flight),
	}
}

// Send appends the user's message to chatID, asks the chat's model for a
// reply and appends it. It blocks until the turn ends.
//
// Rejected input returns a *ValidationError. ErrBusy and ErrChatNotFound are
// returned as-is. Provider failures are not returned as errors: they end the
// turn in PhaseFailed with an error reply appended.
func (o *Orchestrator) Send(ctx context.Context, chatID string, req Request) (Turn, error) {
	chat, ok := o.state.Chat(chatID)
	if !ok {
		return Turn{}, ErrChatNotFound
	}
	m, err := o.resolveModel(chat.ModelID)
	if err != nil {
		return Turn{}, o.reject(err)
	}
	if err := validateRequest(req, m); err != nil {
		return Turn{}, o.reject(err)
	}

	f, err := o.arm(ctx, chatID)
	if err != nil {
		return Turn{}, err
	}
	defer o.release(chatID, f)

	ctx = logger.ContextWithChatID(f.ctx, chatID)
	turn := Turn{ChatID: chatID, Model: m}

	files := make([]model.EncodedFile, len(req.Attachments))
	for i, a := range req.Attachments {
		files[i] = a.Encode()
	}
	turn.User, err = o.state.AddMessage(chatID, model.NewMessageWithFiles(model.RoleUser, req.Text, files))
	if err != nil {
		return Turn{}, ErrChatNotFound
	}

	chat, ok = o.state.Chat(chatID)
	if !ok {
		return Turn{}, ErrChatNotFound
	}

	o.log.DebugContext(ctx, "dispatching", "model", m.ID, "messages", len(chat.Messages))
	outcome, err := o.invoker.Invoke(ctx, chat.Messages, m)
	if err != nil {
		if provider.IsCancelled(err) {
			return o.cancelled(ctx, turn), nil
		}
		return o.fail(ctx, f, turn, err), nil
	}

	reply, err := o.resolver.Resolve(ctx, outcome)
	if err != nil {
		return o.cancelled(ctx, turn), nil
	}

	var appendErr error
	if !o.commit(chatID, f, func() { turn.Reply, appendErr = o.state.AddMessage(chatID, reply) }) {
		return o.cancelled(ctx, turn), nil
	}
	if appendErr != nil {
		return Turn{}, ErrChatNotFound
	}
	turn.Phase = PhaseResolved
	o.log.DebugContext(ctx, "reply recorded", "kind", string(turn.Reply.Kind()))
	return turn, nil
}

// Stop cancels the flight for chatID. It reports whether one was running.
// Nothing is appended on behalf of the stopped flight.
func (o *Orchestrator) Stop(chatID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopLocked(chatID)
}

// StopAll cancels every flight.
func (o *Orchestrator) StopAll() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for id := range o.flights {
		if o.stopLocked(id) {
			n++
		}
	}
	return n
}

// ChangeModel rebinds chatID to modelID after checking the catalog.
func (o *Orchestrator) ChangeModel(chatID, modelID string) error {
	if _, err := o.resolveModel(modelID); err != nil {
		return o.reject(err)
	}
	if err := o.state.UpdateChatModel(chatID, modelID); err != nil {
		return ErrChatNotFound
	}
	return nil
}

// Phase returns PhaseSending while a flight for chatID is running.
func (o *Orchestrator) Phase(chatID string) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.flights[chatID]; ok {
		return PhaseSending
	}
	return PhaseIdle
}

// =============================================================================
// FLIGHT BOOKKEEPING
// =============================================================================

func (o *Orchestrator) arm(parent context.Context, chatID string) (*flight, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.flights[chatID]; busy {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(parent)
	f := &flight{ctx: ctx, cancel: cancel}
	o.flights[chatID] = f
	return f, nil
}

// release clears f if it is still the chat's flight.
func (o *Orchestrator) release(chatID string, f *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.flights[chatID] == f {
		delete(o.flights, chatID)
	}
	f.cancel()
}

func (o *Orchestrator) stopLocked(chatID string) bool {
	f, ok := o.flights[chatID]
	if !ok {
		return false
	}
	delete(o.flights, chatID)
	f.cancel()
	return true
}

// commit runs fn only while f is still the chat's live flight. The flight
// lock is held across fn, so a concurrent Stop lands either before fn (and
// fn is skipped) or after it.
func (o *Orchestrator) commit(chatID string, f *flight, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.flights[chatID] != f || f.ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// =============================================================================
// OUTCOMES
// =============================================================================

func (o *Orchestrator) cancelled(ctx context.Context, turn Turn) Turn {
	o.log.DebugContext(ctx, "flight discarded")
	turn.Phase = PhaseCancelling
	return turn
}

func (o *Orchestrator) fail(ctx context.Context, f *flight, turn Turn, err error) Turn {
	detail := strings.TrimSpace(err.Error())
	if detail == "" {
		detail = "Something went wrong"
	}

	msg := model.NewMessage(model.RoleAssistant, "Error: "+detail)
	if !o.commit(turn.ChatID, f, func() { turn.Reply, _ = o.state.AddMessage(turn.ChatID, msg) }) {
		return o.cancelled(ctx, turn)
	}
	o.log.WarnContext(ctx, "provider call failed",
		"model", turn.Model.ID, "kind", string(provider.KindOf(err)), logger.Err(err))
	o.notifier.Notify(Notice{Title: "Error", Description: detail, Variant: VariantDestructive})

	turn.Phase = PhaseFailed
	turn.Err = err
	return turn
}

func (o *Orchestrator) reject(err error) error {
	if ve, ok := err.(*ValidationError); ok {
		o.notifier.Notify(Notice{Title: ve.Title, Description: ve.Reason, Variant: VariantWarning})
	}
	return err
}

// =============================================================================
// VALIDATION
// =============================================================================

func (o *Orchestrator) resolveModel(id string) (model.AIModel, error) {
	m, ok := o.lookup(id)
	if !ok {
		return model.AIModel{}, &ValidationError{
			Field:  "model",
			Value:  id,
			Title:  "Unknown model",
			Reason: fmt.Sprintf("Model %q is not in the catalog", id),
		}
	}
	return m, nil
}

func validateRequest(req Request, m model.AIModel) error {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return &ValidationError{
			Field:  "message",
			Title:  "Empty message",
			Reason: "Type a message or attach a file",
		}
	}

	var images, documents bool
	for _, a := range req.Attachments {
		if a.IsImage() {
			images = true
		} else {
			documents = true
		}
	}
	noImages := images && !m.SupportsImages
	noDocs := documents && !m.SupportsFiles
	if !noImages && !noDocs {
		return nil
	}

	var unsupported []string
	if noImages {
		unsupported = append(unsupported, "images")
	}
	if noDocs {
		unsupported = append(unsupported, "documents")
	}
	return &ValidationError{
		Field:  "attachments",
		Value:  m.ID,
		Title:  "Unsupported files",
		Reason: "The selected model doesn't support " + strings.Join(unsupported, " or "),
	}
}
