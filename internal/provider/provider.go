// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeranaias/polychat/internal/model"
)

// =============================================================================
// OUTCOME TYPE
// =============================================================================

// Outcome is the provider-agnostic result of an invocation.
// It is exactly one of Text or GeneratedImage.
type Outcome interface {
	outcome()
}

// Text is a plain text reply.
type Text struct {
	Content string
}

// GeneratedImage references an image the provider synthesized remotely.
type GeneratedImage struct {
	URL string
}

func (Text) outcome()           {}
func (GeneratedImage) outcome() {}

// =============================================================================
// ADAPTER CONTRACT
// =============================================================================

// Adapter is one provider's translation unit.
//
// Invoke receives the full ordered history, including the message just sent,
// and must abort the network call when ctx is cancelled.
type Adapter interface {
	Provider() model.Provider
	Invoke(ctx context.Context, history []model.Message, m model.AIModel) (Outcome, error)
}

// Registry routes an invocation to the adapter registered for the model's
// provider tag.
type Registry struct {
	adapters map[model.Provider]Adapter
}

// NewRegistry creates a registry from adapters. A later adapter for the same
// provider replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Invoke dispatches to the adapter for m.Provider.
func (r *Registry) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (Outcome, error) {
	a, ok := r.adapters[m.Provider]
	if !ok {
		return nil, &Error{
			Kind:     KindUnsupportedProvider,
			Provider: m.Provider,
			Detail:   fmt.Sprintf("Unsupported model provider: %s", m.Provider),
		}
	}
	return a.Invoke(ctx, history, m)
}

// Supports reports whether an adapter is registered for p.
func (r *Registry) Supports(p model.Provider) bool {
	_, ok := r.adapters[p]
	return ok
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// Keyring holds provider API keys. It is safe for concurrent use and may be
// updated while requests are in flight; each invocation reads the current key.
type Keyring struct {
	mu   sync.RWMutex
	keys map[model.Provider]string
}

// NewKeyring creates a keyring seeded with keys.
func NewKeyring(keys map[model.Provider]string) *Keyring {
	k := &Keyring{keys: make(map[model.Provider]string)}
	k.Replace(keys)
	return k
}

// Get returns the key for p, or "" when unset.
func (k *Keyring) Get(p model.Provider) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[p]
}

// Set stores the key for p.
func (k *Keyring) Set(p model.Provider, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[p] = key
}

// Replace swaps in a whole new key set.
func (k *Keyring) Replace(keys map[model.Provider]string) {
	next := make(map[model.Provider]string, len(keys))
	for p, key := range keys {
		next[p] = key
	}
	k.mu.Lock()
	k.keys = next
	k.mu.Unlock()
}

// CredentialName is the name a user knows each provider's key by.
func CredentialName(p model.Provider) string {
	switch p {
	case model.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case model.ProviderClaude:
		return "ANTHROPIC_API_KEY"
	case model.ProviderLlama:
		return "LLAMA_API_KEY"
	case model.ProviderGemini:
		return "GOOGLE_API_KEY"
	default:
		return fmt.Sprintf("%s API key", p)
	}
}

// requireKey fails fast, before any network call, when p has no key.
func requireKey(keys *Keyring, p model.Provider) (string, error) {
	var key string
	if keys != nil {
		key = keys.Get(p)
	}
	if key == "" {
		name := CredentialName(p)
		return "", &Error{
			Kind:     KindMissingCredential,
			Provider: p,
			Detail:   fmt.Sprintf("%s API key is missing. Please set the %s environment variable.", p.Label(), name),
		}
	}
	return key, nil
}
