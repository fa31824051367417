// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chats to files for reading or sharing.
//
// # Supported Formats
//
//   - JSON: The stored chat document, re-readable by polychat
//   - Markdown: Human-readable with YAML frontmatter
//   - HTML: Self-contained page rendered with blackfriday, images inlined
//
// # Usage
//
//	opts := export.DefaultOptions()
//	opts.OutputDir = "exports"
//	path, err := export.ExportChat(&chat, "html", opts)
package export
