// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"

	"github.com/jeranaias/polychat/internal/model"
)

// Kind classifies an adapter failure.
type Kind string

const (
	KindMissingCredential   Kind = "MissingCredential"
	KindUnsupportedProvider Kind = "UnsupportedProvider"
	KindCancelled           Kind = "Cancelled"
	KindTransport           Kind = "TransportError"
	KindProvider            Kind = "ProviderError"
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrMissingCredential   = &Error{Kind: KindMissingCredential}
	ErrUnsupportedProvider = &Error{Kind: KindUnsupportedProvider}
	ErrCancelled           = &Error{Kind: KindCancelled}
	ErrTransport           = &Error{Kind: KindTransport}
	ErrProvider            = &Error{Kind: KindProvider}
)

// Error is an adapter failure with a kind and a human-readable detail.
type Error struct {
	Kind     Kind
	Provider model.Provider
	Detail   string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so the package sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or "" when err is not an adapter failure.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsCancelled reports whether err represents a user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// cancelled builds the Cancelled error for p.
func cancelled(p model.Provider, err error) *Error {
	return &Error{Kind: KindCancelled, Provider: p, Detail: "request cancelled", Err: err}
}

// transportFailure classifies a failed round trip. Context cancellation wins
// over whatever the network layer reported.
func transportFailure(ctx context.Context, p model.Provider, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return cancelled(p, err)
	}
	return &Error{Kind: KindTransport, Provider: p, Detail: p.Label() + " request failed: " + err.Error(), Err: err}
}
