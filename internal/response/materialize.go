// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package response

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/polychat/internal/model"
)

// MaxImageSize caps a fetched generated image.
const MaxImageSize = 25 * 1024 * 1024

// Materializer converts a remote image reference into a self-contained
// data URL.
type Materializer interface {
	Materialize(ctx context.Context, url string) (string, error)
}

// FetchError reports a failed image download.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("image download failed (HTTP %d)", e.Status)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPMaterializer downloads images over HTTP.
type HTTPMaterializer struct {
	client  *http.Client
	maxSize int64
}

// NewHTTPMaterializer creates a materializer. A nil client uses a client with
// a conservative timeout.
func NewHTTPMaterializer(client *http.Client) *HTTPMaterializer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPMaterializer{client: client, maxSize: MaxImageSize}
}

// WithMaxSize overrides the download cap.
func (h *HTTPMaterializer) WithMaxSize(n int64) *HTTPMaterializer {
	h.maxSize = n
	return h
}

// Materialize implements Materializer. Data URLs pass through untouched.
func (h *HTTPMaterializer) Materialize(ctx context.Context, url string) (string, error) {
	if model.IsDataURL(url) {
		return url, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxSize+1))
	if err != nil {
		return "", &FetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > h.maxSize {
		return "", &FetchError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("image exceeds %d bytes", h.maxSize)}
	}

	return model.EncodeDataURL(mediaType(resp.Header.Get("Content-Type"), data), data), nil
}

// mediaType prefers the declared content type and sniffs when it is missing
// or generic.
func mediaType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	sniffed := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(sniffed); err == nil {
		return mt
	}
	return strings.TrimSpace(sniffed)
}
