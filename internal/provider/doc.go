// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider translates chats into AI provider requests and back.
//
// Each Adapter owns one provider's wire format. It receives the full ordered
// message history plus the resolved catalog model and returns a typed Outcome:
// either Text or a GeneratedImage reference.
//
// # Key Types
//
//   - Adapter: Per-provider translation unit
//   - Registry: Selects the adapter for a model's provider tag
//   - Outcome: Sealed result type (Text | GeneratedImage)
//   - Error: Failure with a Kind (MissingCredential, UnsupportedProvider,
//     Cancelled, TransportError, ProviderError)
//   - Keyring: Caller-owned credentials, updatable at runtime
//
// # Usage
//
//	keys := provider.NewKeyring(map[model.Provider]string{model.ProviderOpenAI: key})
//	reg := provider.NewRegistry(provider.NewOpenAI(keys, provider.Options{}))
//	out, err := reg.Invoke(ctx, chat.Messages, m)
//	if provider.IsCancelled(err) {
//	    return
//	}
package provider
