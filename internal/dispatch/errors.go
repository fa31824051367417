// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch sends a chat's conversation to its model and records the
// reply.
package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrBusy         = errors.New("a request for this chat is already in flight")
	ErrChatNotFound = errors.New("chat not found")
)

// ValidationError is input rejected before anything is sent.
type ValidationError struct {
	Field  string // "message", "attachments" or "model"
	Value  string // offending value, if any
	Title  string // short notice title
	Reason string // human-readable reason
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	return msg
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
