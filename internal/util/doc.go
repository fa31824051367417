// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by storage and the shell.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: Column-aware truncation for tables
//   - PadRight: Column-aware padding (go-runewidth)
//   - SingleLine: Collapses line breaks for one-line previews
package util
