// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/polychat/internal/model"
)

const (
	// DefaultTimeout bounds a single provider round trip.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize caps how much of a provider reply is read into memory.
	MaxResponseSize = 20 * 1024 * 1024
)

// sharedHTTPClient pools connections across every adapter.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// Options configures an adapter. Zero values pick the provider defaults.
type Options struct {
	// BaseURL overrides the provider endpoint root.
	BaseURL string

	// HTTPClient replaces the shared pooled client.
	HTTPClient *http.Client

	// Timeout bounds one round trip on the shared client. Ignored when
	// HTTPClient is set.
	Timeout time.Duration

	// RequestsPerMinute throttles outgoing calls. Zero disables throttling.
	RequestsPerMinute int

	// Logger receives request summaries. Keys and bodies are never logged.
	Logger *slog.Logger
}

// transport is the HTTP plumbing every adapter shares.
type transport struct {
	provider model.Provider
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

func newTransport(p model.Provider, defaultBase string, opts Options) transport {
	t := transport{
		provider: p,
		baseURL:  defaultBase,
		client:   sharedHTTPClient,
		log:      opts.Logger,
	}
	if opts.BaseURL != "" {
		t.baseURL = opts.BaseURL
	}
	switch {
	case opts.HTTPClient != nil:
		t.client = opts.HTTPClient
	case opts.Timeout > 0 && opts.Timeout != sharedHTTPClient.Timeout:
		t.client = &http.Client{Transport: sharedHTTPClient.Transport, Timeout: opts.Timeout}
	}
	if opts.RequestsPerMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// wait blocks on the rate limiter. A cancelled wait is a user cancellation.
func (t *transport) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(t.provider, err)
	}
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled(t.provider, err)
		}
		return &Error{Kind: KindTransport, Provider: t.provider, Detail: "rate limit wait failed: " + err.Error(), Err: err}
	}
	return nil
}

// postJSON sends in as JSON to endpoint and decodes a 200 reply into out.
// Non-200 replies are passed to describe for a provider-specific message.
func (t *transport) postJSON(ctx context.Context, endpoint string, header http.Header, in, out any, describe func(status int, body []byte) string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return &Error{Kind: KindTransport, Provider: t.provider, Detail: "failed to marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return &Error{Kind: KindTransport, Provider: t.provider, Detail: "failed to create request", Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		// The URL may carry a credential in its query; keep only the cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return transportFailure(ctx, t.provider, err)
	}
	defer resp.Body.Close()

	t.log.Debug("provider request",
		"provider", t.provider,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return transportFailure(ctx, t.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindProvider, Provider: t.provider, Detail: describe(resp.StatusCode, body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindProvider, Provider: t.provider, Detail: "failed to parse " + t.provider.Label() + " response", Err: err}
	}
	return nil
}

// readResponse reads the body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// httpErrorDetail formats a non-200 reply, preferring the provider's message.
func httpErrorDetail(p model.Provider, status int, message string, body []byte) string {
	if message == "" {
		message = string(bytes.TrimSpace(body))
	}
	if len(message) > 500 {
		message = message[:500] + "..."
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Sprintf("%s API error (HTTP %d): %s", p.Label(), status, message)
}
