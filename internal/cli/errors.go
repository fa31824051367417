// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types for shell commands.
//
// Command handlers return errors and the loop displays them. Nothing prints
// and returns nil.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/polychat/internal/dispatch"
)

// errQuit ends the read loop.
var errQuit = errors.New("quit")

// CommandError represents a failed slash command.
type CommandError struct {
	Command string // Command that failed (e.g., "/export")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError reports a slash command called with the wrong arguments.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s %s", e.Command, e.Usage)
}

func usage(command, text string) error {
	return &UsageError{Command: command, Usage: text}
}

func commandFailed(command, reason string, err error) error {
	return &CommandError{Command: command, Reason: reason, Err: err}
}

// DisplayError prints err in the shell's error format. Validation errors
// were already shown as notices and are skipped.
func DisplayError(w io.Writer, err error) {
	if err == nil || dispatch.IsValidation(err) {
		return
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		fmt.Fprintf(w, "%s %s\n", WarningStyle.Render("[Usage]"), ue.Error())
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[Error]"), err.Error())
}
