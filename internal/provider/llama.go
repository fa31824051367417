// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/polychat/internal/model"
)

// DefaultLlamaURL is the Llama API root. It speaks the OpenAI chat
// completions dialect, so any OpenAI-compatible server (Ollama's /v1 included)
// can stand in via Options.BaseURL.
const DefaultLlamaURL = "https://api.llama-api.com"

// Llama serves text-only Llama models.
type Llama struct {
	keys *Keyring
	t    transport
}

// NewLlama creates the Llama adapter.
func NewLlama(keys *Keyring, opts Options) *Llama {
	return &Llama{keys: keys, t: newTransport(model.ProviderLlama, DefaultLlamaURL, opts)}
}

// Provider implements Adapter.
func (a *Llama) Provider() model.Provider { return model.ProviderLlama }

// Invoke implements Adapter. Attachments are never forwarded.
func (a *Llama) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (Outcome, error) {
	key, err := requireKey(a.keys, model.ProviderLlama)
	if err != nil {
		return nil, err
	}
	if err := a.t.wait(ctx); err != nil {
		return nil, err
	}

	client := newOpenAIClient(key, &a.t)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     m.APIParam,
		Messages:  openAIMessages(history, false),
		MaxTokens: m.MaxTokens,
	})
	if err != nil {
		return nil, classifyOpenAI(ctx, model.ProviderLlama, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Text{Content: "No response from Llama"}, nil
	}
	return Text{Content: resp.Choices[0].Message.Content}, nil
}
