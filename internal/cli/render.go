// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/polychat/internal/model"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// RenderOptions configures reply rendering.
type RenderOptions struct {
	// Markdown enables glamour rendering. Callers turn it off for piped output.
	Markdown bool

	// Style is a glamour style name: auto, dark, light, notty...
	Style string

	// Width is the word-wrap column.
	Width int
}

// Renderer formats messages for the terminal.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer builds a Renderer. A glamour setup failure falls back to
// plain text.
func NewRenderer(opts RenderOptions) *Renderer {
	if !opts.Markdown {
		return &Renderer{}
	}
	if opts.Width <= 0 {
		opts.Width = DefaultTerminalWidth
	}

	style := glamour.WithAutoStyle()
	if opts.Style != "" && opts.Style != "auto" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: md}
}

// Markdown renders content, returning it unchanged when rendering is off or
// fails.
func (r *Renderer) Markdown(content string) string {
	if r == nil || r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// MESSAGE DISPLAY
// =============================================================================

// WriteMessage prints one message with its role header.
func (r *Renderer) WriteMessage(w io.Writer, msg model.Message) {
	fmt.Fprintf(w, "%s %s\n",
		RoleStyle(msg.Role).Render(msg.Role.DisplayName()),
		DimStyle.Render(msg.Timestamp.Format(time.Kitchen)))

	if content := strings.TrimSpace(msg.Content); content != "" {
		if msg.Role == model.RoleAssistant {
			fmt.Fprintln(w, strings.TrimRight(r.Markdown(content), "\n"))
		} else {
			fmt.Fprintln(w, content)
		}
	}
	if msg.Kind() == model.ContentImage {
		fmt.Fprintf(w, "%s %s\n", InfoStyle.Render("[Image]"), describeImage(msg.ImageURL))
	}
	for _, name := range msg.FileNames {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("[Attached]"), name)
	}
}

// describeImage summarizes an image URL without dumping a data URL.
func describeImage(url string) string {
	if !model.IsDataURL(url) {
		return url
	}
	mediaType, payload, err := model.ParseDataURL(url)
	if err != nil {
		return "embedded image"
	}
	// base64 carries 3 bytes per 4 characters
	size := int64(len(payload)) * 3 / 4
	return fmt.Sprintf("%s, %s (use /export html to view)", mediaType, formatBytes(size))
}
