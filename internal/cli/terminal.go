// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the polychat shell.
//
// Colors are disabled for non-TTY output, when NO_COLOR is set, or when the
// log/ui config asks for it. FORCE_COLOR overrides TTY detection.

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL SIZE
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// TerminalWidth returns the stdout width, capped at max when max > 0.
func TerminalWidth(max int) int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if max > 0 && width > max {
		width = max
	}
	return width
}

// =============================================================================
// COLOR CONTROL
// =============================================================================

// ColorsEnabled reports whether colored output should be used.
// See https://no-color.org/ for the NO_COLOR convention.
func ColorsEnabled(noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return IsStdoutTTY()
}

// ColorProfile returns the termenv profile for the current terminal.
func ColorProfile(noColor bool) termenv.Profile {
	if !ColorsEnabled(noColor) {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// ConfigureColor applies the color profile to every lipgloss style.
func ConfigureColor(noColor bool) {
	lipgloss.SetColorProfile(ColorProfile(noColor))
}
