// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the interactive polychat shell.
//
// The shell reads lines with liner, sends plain text to the active chat
// through the dispatch orchestrator and treats lines starting with "/" as
// commands. Replies are rendered with glamour when stdout is a terminal.
//
// # Key Types
//
//   - Shell: The read-eval loop bound to a state.Store and an Orchestrator
//   - NoticePrinter: A dispatch.Notifier that prints notices to a terminal
//   - Renderer: Markdown rendering for assistant replies
//   - ArgParser: Flag and positional parsing for slash command arguments
//
// # Usage
//
//	sh := cli.NewShell(cli.Options{
//	    State:        store,
//	    Orchestrator: orch,
//	    Sync:         gateway,
//	    Input:        cli.NewLineInput(historyFile),
//	})
//	return sh.Run(ctx)
//
// # Commands
//
//	/new [model]        Start a chat
//	/list               List chats
//	/switch <n|id>      Activate a chat
//	/model [id]         Show or change the chat's model
//	/attach <path>      Queue a file for the next message
//	/export [format]    Write the chat to markdown, html or json
//	/temp on|off        Toggle temporary mode
//	/quit               Exit
package cli
