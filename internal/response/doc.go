// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package response turns provider outcomes into assistant messages.
//
// Text outcomes become text messages. Generated images are fetched once and
// embedded as data URLs so a stored chat never depends on a remote link that
// expires.
package response
