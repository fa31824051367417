// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// Input is the shell's line source. *LineInput is the terminal one.
type Input interface {
	// Prompt reads one line. Ctrl+C returns liner.ErrPromptAborted and
	// Ctrl+D returns io.EOF.
	Prompt(prompt string) (string, error)

	AppendHistory(item string)
}

// LineInput provides line editing and persistent history for the shell.
type LineInput struct {
	line        *liner.State
	historyFile string
}

// NewLineInput creates a LineInput. An empty historyFile disables history
// persistence.
func NewLineInput(historyFile string) *LineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &LineInput{
		line:        line,
		historyFile: historyFile,
	}
	in.LoadHistory()
	return in
}

// Prompt reads a line of input with the given prompt.
func (c *LineInput) Prompt(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory adds a line to the in-memory history.
func (c *LineInput) AppendHistory(item string) {
	c.line.AppendHistory(item)
}

// SetCommands enables tab completion of slash command names.
func (c *LineInput) SetCommands(names []string) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	c.line.SetCompleter(func(line string) []string {
		if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
			return nil
		}
		var out []string
		for _, n := range sorted {
			if strings.HasPrefix(n, line) {
				out = append(out, n)
			}
		}
		return out
	})
}

// LoadHistory loads command history from file.
func (c *LineInput) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// SaveHistory persists command history owner-readable only.
func (c *LineInput) SaveHistory() error {
	if c.historyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	if _, err := c.line.WriteHistory(f); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Close saves history and restores the terminal.
func (c *LineInput) Close() error {
	err := c.SaveHistory()
	if cerr := c.line.Close(); err == nil {
		err = cerr
	}
	return err
}
