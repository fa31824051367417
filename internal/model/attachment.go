// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
package model

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidDataURL is returned when a string is not a base64 data URL.
var ErrInvalidDataURL = errors.New("invalid data URL")

// Attachment is an already-validated file payload handed to the core.
type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// IsImage reports whether the attachment's media category is image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MediaType), "image/")
}

// Encode converts the attachment into its storable data URL form.
func (a Attachment) Encode() EncodedFile {
	return EncodedFile{
		Name: a.Name,
		URL:  EncodeDataURL(a.MediaType, a.Data),
	}
}

// EncodedFile is an attachment in the form stored on a Message.
type EncodedFile struct {
	Name string
	URL  string
}

// EncodeDataURL builds a base64 data URL for the payload.
func EncodeDataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into its media type and base64 payload.
// The payload is returned still encoded, the way provider wire formats want it.
func ParseDataURL(u string) (mediaType, payload string, err error) {
	if !strings.HasPrefix(u, "data:") {
		return "", "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(u[len("data:"):], ",")
	if !ok {
		return "", "", ErrInvalidDataURL
	}
	mediaType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", "", ErrInvalidDataURL
	}
	return mediaType, payload, nil
}

// IsImageDataURL reports whether u is an inline image.
func IsImageDataURL(u string) bool {
	return strings.HasPrefix(u, "data:image/")
}

// IsDataURL reports whether u is an inline (locally embeddable) payload.
func IsDataURL(u string) bool {
	return strings.HasPrefix(u, "data:")
}
