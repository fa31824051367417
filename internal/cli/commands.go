// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/polychat/internal/export"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/state"
	"github.com/jeranaias/polychat/internal/util"
)

// syncTimeout bounds /sync.
const syncTimeout = 30 * time.Second

// =============================================================================
// COMMAND TABLE
// =============================================================================

type command struct {
	names []string
	args  string
	desc  string
	run   func(ctx context.Context, args []string) error
}

func (s *Shell) commandTable() []command {
	return []command{
		{[]string{"/help", "/h", "/?"}, "", "Show this help", s.cmdHelp},
		{[]string{"/new", "/n"}, "[model]", "Start a chat", s.cmdNew},
		{[]string{"/list", "/ls"}, "", "List chats", s.cmdList},
		{[]string{"/switch", "/s"}, "<n|id>", "Activate a chat", s.cmdSwitch},
		{[]string{"/delete", "/rm"}, "[n|id]", "Delete a chat (default: active)", s.cmdDelete},
		{[]string{"/rename"}, "<title>", "Rename the active chat", s.cmdRename},
		{[]string{"/model", "/m"}, "[id]", "Show or change the chat's model", s.cmdModel},
		{[]string{"/models"}, "", "List available models", s.cmdModels},
		{[]string{"/history"}, "", "Show the active chat", s.cmdHistory},
		{[]string{"/clear", "/c"}, "", "Clear the active chat's messages", s.cmdClear},
		{[]string{"/temp"}, "[on|off]", "Toggle temporary (unsaved) chats", s.cmdTemp},
		{[]string{"/attach", "/a"}, "[path...|clear]", "Queue files for the next message", s.cmdAttach},
		{[]string{"/export"}, "[md|html|json] [--dir d] [--embed-images] [--open]", "Export the active chat", s.cmdExport},
		{[]string{"/sync"}, "", "Wait for saves and show storage status", s.cmdSync},
		{[]string{"/quit", "/q", "/exit"}, "", "Exit", s.cmdQuit},
	}
}

// runCommand parses and dispatches a slash command.
func (s *Shell) runCommand(ctx context.Context, line string) error {
	words, err := splitCommandLine(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	if words[0] == "/" {
		return s.cmdHelp(ctx, nil)
	}

	name := strings.ToLower(words[0])
	for _, c := range s.commands {
		for _, n := range c.names {
			if n == name {
				return c.run(ctx, words[1:])
			}
		}
	}
	return fmt.Errorf("unknown command: %s (type /help for commands)", name)
}

// =============================================================================
// CHAT COMMANDS
// =============================================================================

func (s *Shell) cmdHelp(_ context.Context, _ []string) error {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(s.out, RenderSeparator(20))
	for _, c := range s.commands {
		line := c.names[0]
		if c.args != "" {
			line += " " + c.args
		}
		fmt.Fprintf(s.out, "  %s  %s\n",
			CommandStyle.Render(util.PadRight(line, 28)),
			LabelStyle.Render(c.desc))
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, DimStyle.Render("Tip: Ctrl+C stops a reply in progress, Ctrl+D exits"))
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) cmdNew(_ context.Context, args []string) error {
	modelID := s.model
	if len(args) > 0 {
		if _, ok := model.GetModel(args[0]); !ok {
			return commandFailed("/new", fmt.Sprintf("unknown model %q (see /models)", args[0]), nil)
		}
		modelID = args[0]
	}

	id, ok := s.state.AddChat(modelID, "")
	if !ok {
		return commandFailed("/new", "a temporary chat is in progress; use /temp off first", nil)
	}
	chat, _ := s.state.Chat(id)
	label := "chat"
	if chat.Temporary {
		label = "temporary chat"
	}
	fmt.Fprintf(s.out, "%s New %s with %s\n", SuccessStyle.Render("[OK]"), label, modelName(chat.ModelID))
	return nil
}

func (s *Shell) cmdList(_ context.Context, _ []string) error {
	snap := s.state.Snapshot()
	if len(snap.Chats) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("[No chats yet]"))
		return nil
	}

	now := s.now()
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "    %s  %s  %s  %s  %s\n",
		util.PadRight("#", 3),
		util.PadRight("Title", 32),
		util.PadRight("Model", 20),
		util.PadRight("Msgs", 5),
		"Updated")
	for i, c := range snap.Chats {
		marker := "  "
		if c.ID == snap.ActiveChat {
			marker = CommandStyle.Render("* ")
		}
		title := c.Title
		if c.Temporary {
			title += " (temp)"
		}
		fmt.Fprintf(s.out, "  %s%s  %s  %s  %s  %s\n",
			marker,
			util.PadRight(strconv.Itoa(i+1), 3),
			util.PadRight(util.TruncateWidth(util.SingleLine(title), 32), 32),
			util.PadRight(util.TruncateWidth(c.ModelID, 20), 20),
			util.PadRight(strconv.Itoa(len(c.Messages)), 5),
			DimStyle.Render(formatAge(c.UpdatedAt, now)))
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) cmdSwitch(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/switch", "<n|id>")
	}
	id, err := s.resolveChat(args[0])
	if err != nil {
		return err
	}
	if err := s.state.SetActiveChat(id); err != nil {
		return commandFailed("/switch", "cannot activate chat", err)
	}
	chat, _ := s.state.Chat(id)
	fmt.Fprintf(s.out, "%s Switched to %q (%s)\n", SuccessStyle.Render("[OK]"), chat.Title, chat.ModelID)
	return nil
}

func (s *Shell) cmdDelete(_ context.Context, args []string) error {
	id := s.state.ActiveChatID()
	if len(args) > 0 {
		var err error
		if id, err = s.resolveChat(args[0]); err != nil {
			return err
		}
	}
	if id == "" {
		return commandFailed("/delete", "no active chat", nil)
	}

	chat, _ := s.state.Chat(id)
	s.orch.Stop(id)
	if !s.state.DeleteChat(id) {
		return commandFailed("/delete", "chat not found", state.ErrChatNotFound)
	}
	fmt.Fprintf(s.out, "%s Deleted %q\n", SuccessStyle.Render("[OK]"), chat.Title)
	if chat.Temporary {
		fmt.Fprintf(s.out, "%s Temporary mode off\n", DimStyle.Render("[Temp]"))
	}
	return nil
}

func (s *Shell) cmdRename(_ context.Context, args []string) error {
	if len(args) == 0 {
		return usage("/rename", "<title>")
	}
	id, err := s.activeChatID("/rename")
	if err != nil {
		return err
	}
	title := strings.Join(args, " ")
	if err := s.state.RenameChat(id, title); err != nil {
		return commandFailed("/rename", "cannot rename chat", err)
	}
	fmt.Fprintf(s.out, "%s Renamed to %q\n", SuccessStyle.Render("[OK]"), strings.TrimSpace(title))
	return nil
}

func (s *Shell) cmdModel(_ context.Context, args []string) error {
	chat, ok := s.state.ActiveChat()
	if len(args) == 0 {
		id := s.model
		if ok {
			id = chat.ModelID
		}
		fmt.Fprintf(s.out, "%s Current model: %s\n", InfoStyle.Render("[Model]"), CommandStyle.Render(id))
		return nil
	}

	if !ok {
		// No chat yet: the next implicit chat uses the new model.
		if _, found := model.GetModel(args[0]); !found {
			return commandFailed("/model", fmt.Sprintf("unknown model %q (see /models)", args[0]), nil)
		}
		s.model = args[0]
	} else if err := s.orch.ChangeModel(chat.ID, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s Switched to model: %s\n", SuccessStyle.Render("[OK]"), modelName(args[0]))
	return nil
}

func (s *Shell) cmdModels(_ context.Context, _ []string) error {
	current := s.model
	if chat, ok := s.state.ActiveChat(); ok {
		current = chat.ModelID
	}

	fmt.Fprintln(s.out)
	for _, group := range model.ProviderGroups() {
		fmt.Fprintln(s.out, TitleStyle.Render(group.Label))
		for _, m := range group.Models {
			marker := "  "
			if m.ID == current {
				marker = CommandStyle.Render("* ")
			}
			fmt.Fprintf(s.out, "  %s%s  %s  %s\n",
				marker,
				CommandStyle.Render(util.PadRight(m.ID, 20)),
				util.PadRight(m.Name, 20),
				DimStyle.Render(m.CapabilitiesString()))
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *Shell) cmdHistory(_ context.Context, _ []string) error {
	chat, ok := s.state.ActiveChat()
	if !ok {
		return commandFailed("/history", "no active chat", nil)
	}
	if len(chat.Messages) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("[No messages yet]"))
		return nil
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, TitleStyle.Render(chat.Title))
	fmt.Fprintln(s.out, RenderSeparator(len([]rune(chat.Title))))
	for _, msg := range chat.Messages {
		fmt.Fprintln(s.out)
		s.render.WriteMessage(s.out, msg)
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) cmdClear(_ context.Context, _ []string) error {
	id, err := s.activeChatID("/clear")
	if err != nil {
		return err
	}
	s.orch.Stop(id)
	if err := s.state.ClearMessages(id); err != nil {
		return commandFailed("/clear", "cannot clear chat", err)
	}
	fmt.Fprintln(s.out, SuccessStyle.Render("[Conversation cleared]"))
	return nil
}

func (s *Shell) cmdTemp(_ context.Context, args []string) error {
	on := !s.state.TemporaryMode()
	if len(args) > 0 {
		v, err := ParseBoolString(args[0])
		if err != nil {
			return usage("/temp", "[on|off]")
		}
		on = v
	}

	s.state.SetTemporaryMode(on)
	if on {
		fmt.Fprintln(s.out, WarningStyle.Render("[Temporary mode on] Chats started now are not saved"))
	} else {
		fmt.Fprintln(s.out, SuccessStyle.Render("[Temporary mode off] Temporary chats discarded"))
	}
	return nil
}

// =============================================================================
// FILE COMMANDS
// =============================================================================

func (s *Shell) cmdAttach(_ context.Context, args []string) error {
	if len(args) == 0 {
		if len(s.pending) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("[No files attached]"))
			return nil
		}
		for _, a := range s.pending {
			fmt.Fprintf(s.out, "  %s (%s, %s)\n", a.Name, a.MediaType, formatBytes(int64(len(a.Data))))
		}
		return nil
	}
	if len(args) == 1 && args[0] == "clear" {
		s.pending = nil
		fmt.Fprintln(s.out, SuccessStyle.Render("[Attachments cleared]"))
		return nil
	}

	loaded := make([]model.Attachment, 0, len(args))
	for _, path := range args {
		a, err := LoadAttachment(path)
		if err != nil {
			return commandFailed("/attach", "cannot attach "+path, err)
		}
		loaded = append(loaded, a)
	}
	s.pending = append(s.pending, loaded...)

	for _, a := range loaded {
		fmt.Fprintf(s.out, "%s %s (%s, %s)\n",
			SuccessStyle.Render("[Attached]"), a.Name, a.MediaType, formatBytes(int64(len(a.Data))))
	}
	s.warnUnsupported(loaded)
	return nil
}

// warnUnsupported flags files the active model will refuse. The send itself
// still validates.
func (s *Shell) warnUnsupported(files []model.Attachment) {
	chat, ok := s.state.ActiveChat()
	if !ok {
		return
	}
	m, ok := model.GetModel(chat.ModelID)
	if !ok {
		return
	}
	for _, a := range files {
		if (a.IsImage() && !m.SupportsImages) || (!a.IsImage() && !m.SupportsFiles) {
			fmt.Fprintf(s.out, "%s %s does not accept %s\n", WarningStyle.Render("[Warning]"), m.Name, a.Name)
		}
	}
}

func (s *Shell) cmdExport(_ context.Context, args []string) error {
	chat, ok := s.state.ActiveChat()
	if !ok {
		return commandFailed("/export", "no active chat", nil)
	}

	p := NewArgParser(args, "embed-images", "open")
	format := "md"
	if p.PositionalCount() > 0 {
		format = p.Positional(0)
	}

	opts := s.exportOpts
	opts.EmbedImages = opts.EmbedImages || p.BoolFlag("embed-images")
	opts.OpenAfterExport = opts.OpenAfterExport || p.BoolFlag("open")
	opts.Theme = p.FlagOrDefault("theme", opts.Theme)
	if dir := p.Flag("dir"); dir != "" {
		abs, err := ValidateOutputPath(dir)
		if err != nil {
			return commandFailed("/export", "invalid --dir", err)
		}
		opts.OutputDir = abs
	}

	path, err := export.ExportChat(&chat, format, &opts)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return usage("/export", "[md|html|json] [--dir d] [--embed-images] [--open]")
		}
		if path == "" {
			return commandFailed("/export", "cannot export chat", err)
		}
		// Written, but the viewer did not start.
		DisplayError(s.out, err)
	}
	fmt.Fprintf(s.out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

// =============================================================================
// STORAGE COMMANDS
// =============================================================================

func (s *Shell) cmdSync(ctx context.Context, _ []string) error {
	if s.sync == nil {
		fmt.Fprintln(s.out, DimStyle.Render("[Persistence disabled]"))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := s.sync.Flush(ctx); err != nil {
		return commandFailed("/sync", "pending saves did not finish", err)
	}

	fmt.Fprintf(s.out, "%s %s\n", InfoStyle.Render("[Storage]"), s.sync.Status())
	for _, t := range s.sync.FailedWrites() {
		fmt.Fprintf(s.out, "  %s %s: %s\n", ErrorStyle.Render("[Failed]"), t.Description, t.GetError())
	}
	return nil
}

func (s *Shell) cmdQuit(_ context.Context, _ []string) error {
	return errQuit
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveChat accepts a 1-based /list position or a unique ID prefix.
func (s *Shell) resolveChat(ref string) (string, error) {
	chats := s.state.Chats()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(chats) {
			return "", fmt.Errorf("no chat #%d (see /list)", n)
		}
		return chats[n-1].ID, nil
	}

	var match string
	for _, c := range chats {
		if strings.HasPrefix(c.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("chat id %q is ambiguous", ref)
			}
			match = c.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no chat matches %q (see /list)", ref)
	}
	return match, nil
}

func (s *Shell) activeChatID(command string) (string, error) {
	id := s.state.ActiveChatID()
	if id == "" {
		return "", commandFailed(command, "no active chat", nil)
	}
	return id, nil
}
