// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/polychat/internal/dispatch"
)

// NoticePrinter writes dispatch notices as one styled line each.
type NoticePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewNoticePrinter creates a NoticePrinter writing to w.
func NewNoticePrinter(w io.Writer) *NoticePrinter {
	return &NoticePrinter{w: w}
}

// Notify implements dispatch.Notifier.
func (p *NoticePrinter) Notify(n dispatch.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	label := NoticeStyle(n.Variant).Render("[" + n.Title + "]")
	if n.Description == "" {
		fmt.Fprintln(p.w, label)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", label, n.Description)
}
