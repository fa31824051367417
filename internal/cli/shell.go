// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// shell.go - Interactive chat loop for polychat.
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /new [model]        Start a chat
//   /quit, /q           Exit
//   Ctrl+C              Stop the reply in progress (at the prompt: exit)
//   Ctrl+D              Exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/polychat/internal/dispatch"
	"github.com/jeranaias/polychat/internal/export"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/state"
	"github.com/jeranaias/polychat/internal/tasks"
)

// =============================================================================
// SHELL
// =============================================================================

// Syncer reports on background persistence. *storage.Gateway satisfies it.
type Syncer interface {
	Flush(ctx context.Context) error
	Status() string
	FailedWrites() []*tasks.Task
}

// Options configures a Shell.
type Options struct {
	State        *state.Store
	Orchestrator *dispatch.Orchestrator
	Sync         Syncer
	Input        Input
	Out          io.Writer

	// Interrupts delivers Ctrl+C while a reply is pending. Nil disables
	// stopping from the keyboard.
	Interrupts <-chan os.Signal

	Renderer *Renderer
	Export   export.Options

	// DefaultModel binds chats the shell creates implicitly.
	DefaultModel string

	// Quiet skips the banner and timing lines.
	Quiet bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Shell is the interactive read-eval loop.
type Shell struct {
	state      *state.Store
	orch       *dispatch.Orchestrator
	sync       Syncer
	in         Input
	out        io.Writer
	interrupts <-chan os.Signal
	render     *Renderer
	exportOpts export.Options
	model      string
	quiet      bool
	log        *slog.Logger
	now        func() time.Time

	commands []command
	pending  []model.Attachment
}

// NewShell creates a Shell.
func NewShell(opts Options) *Shell {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Renderer == nil {
		opts.Renderer = &Renderer{}
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = model.DefaultModelID
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Export == (export.Options{}) {
		opts.Export = *export.DefaultOptions()
	}

	s := &Shell{
		state:      opts.State,
		orch:       opts.Orchestrator,
		sync:       opts.Sync,
		in:         opts.Input,
		out:        opts.Out,
		interrupts: opts.Interrupts,
		render:     opts.Renderer,
		exportOpts: opts.Export,
		model:      opts.DefaultModel,
		quiet:      opts.Quiet,
		log:        opts.Logger,
		now:        opts.Now,
	}
	s.commands = s.commandTable()
	return s
}

// CommandNames lists every slash command name and alias.
func (s *Shell) CommandNames() []string {
	var names []string
	for _, c := range s.commands {
		names = append(names, c.names...)
	}
	return names
}

// Run reads and executes lines until /quit, Ctrl+D, Ctrl+C at the prompt or
// ctx ends.
func (s *Shell) Run(ctx context.Context) error {
	if !s.quiet {
		s.printWelcome()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := s.in.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				s.printGoodbye()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.in.AppendHistory(input)

		if err := s.handleLine(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				s.printGoodbye()
				return nil
			}
			DisplayError(s.out, err)
		}
	}
}

// handleLine runs one line of input.
func (s *Shell) handleLine(ctx context.Context, line string) error {
	if strings.HasPrefix(line, "/") {
		return s.runCommand(ctx, line)
	}
	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return errQuit
	}
	return s.send(ctx, line)
}

// =============================================================================
// SENDING
// =============================================================================

// send delivers text and any queued attachments to the active chat,
// creating one first when there is none.
func (s *Shell) send(ctx context.Context, text string) error {
	chatID := s.state.ActiveChatID()
	if chatID == "" {
		id, ok := s.state.AddChat(s.model, "")
		if !ok {
			return commandFailed("send", "no chat is active and a temporary chat is already in progress", nil)
		}
		chatID = id
	}
	chat, _ := s.state.Chat(chatID)

	if !s.quiet {
		fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("[%s] waiting for reply (Ctrl+C to stop)", modelName(chat.ModelID))))
	}

	s.drainInterrupts()
	done := make(chan struct{})
	go s.watchInterrupts(chatID, done)

	start := s.now()
	turn, err := s.orch.Send(ctx, chatID, dispatch.Request{Text: text, Attachments: s.pending})
	close(done)
	if err != nil {
		return err
	}
	s.pending = nil

	fmt.Fprintln(s.out)
	switch {
	case turn.Cancelled():
		fmt.Fprintln(s.out, WarningStyle.Render("[Stopped]"))
	case turn.Phase == dispatch.PhaseFailed:
		fmt.Fprintln(s.out, ErrorStyle.Render(turn.Reply.Content))
	default:
		s.render.WriteMessage(s.out, turn.Reply)
		if !s.quiet {
			fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("[%s] %s", turn.Model.Name, s.now().Sub(start).Round(time.Millisecond))))
		}
	}
	fmt.Fprintln(s.out)
	return nil
}

// watchInterrupts stops chatID's flight on the first interrupt before done.
func (s *Shell) watchInterrupts(chatID string, done <-chan struct{}) {
	if s.interrupts == nil {
		return
	}
	select {
	case <-s.interrupts:
		if s.orch.Stop(chatID) {
			s.log.Debug("reply stopped by user", "chat", chatID)
		}
	case <-done:
	}
}

// drainInterrupts drops signals that arrived while no reply was pending.
func (s *Shell) drainInterrupts() {
	if s.interrupts == nil {
		return
	}
	for {
		select {
		case <-s.interrupts:
		default:
			return
		}
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *Shell) prompt() string {
	chat, ok := s.state.ActiveChat()
	if !ok {
		return PromptStyle.Render("polychat> ")
	}
	label := chat.ModelID
	if chat.Temporary {
		label += ", temp"
	}
	if n := len(s.pending); n > 0 {
		label += fmt.Sprintf(", %d attached", n)
	}
	return PromptStyle.Render(fmt.Sprintf("polychat (%s)> ", label))
}

func (s *Shell) printWelcome() {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, TitleStyle.Render("polychat"))
	fmt.Fprintln(s.out, RenderSeparator(30))

	snap := s.state.Snapshot()
	modelID := s.model
	if chat, ok := s.state.ActiveChat(); ok {
		modelID = chat.ModelID
	}
	fmt.Fprintf(s.out, "%s %s\n", LabelStyle.Render("Model:"), CommandStyle.Render(modelName(modelID)))
	fmt.Fprintf(s.out, "%s %d\n", LabelStyle.Render("Chats:"), len(snap.Chats))
	if snap.TemporaryMode {
		fmt.Fprintf(s.out, "%s %s\n", LabelStyle.Render("Mode:"), WarningStyle.Render("temporary (not saved)"))
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, DimStyle.Render("Type a message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(s.out)
}

func (s *Shell) printGoodbye() {
	fmt.Fprintln(s.out, DimStyle.Render("Goodbye!"))
}

// modelName returns the catalog name for id, or id itself.
func modelName(id string) string {
	if m, ok := model.GetModel(id); ok {
		return m.Name
	}
	return id
}
