// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch sends a chat's conversation to its model and records the
// reply.
//
// The Orchestrator runs one flight per chat. A flight validates the request,
// appends the user message, calls the provider without holding any lock and
// appends the normalized reply. Stop cancels a flight; a cancelled or
// superseded flight appends nothing further.
//
// Failures other than cancellation become an "Error: ..." assistant message
// and a destructive Notice. Rejected input becomes a *ValidationError and a
// warning Notice and leaves the chat untouched.
package dispatch
