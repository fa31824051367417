// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/polychat/internal/model"
)

// DefaultOpenAIURL is the OpenAI API root.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAI serves chat models and the image generator through the OpenAI API.
type OpenAI struct {
	keys *Keyring
	t    transport
}

// NewOpenAI creates the OpenAI adapter.
func NewOpenAI(keys *Keyring, opts Options) *OpenAI {
	return &OpenAI{keys: keys, t: newTransport(model.ProviderOpenAI, DefaultOpenAIURL, opts)}
}

// Provider implements Adapter.
func (a *OpenAI) Provider() model.Provider { return model.ProviderOpenAI }

// Invoke implements Adapter.
func (a *OpenAI) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (Outcome, error) {
	key, err := requireKey(a.keys, model.ProviderOpenAI)
	if err != nil {
		return nil, err
	}
	if err := a.t.wait(ctx); err != nil {
		return nil, err
	}

	client := newOpenAIClient(key, &a.t)
	if m.IsImageGenerator {
		return a.generateImage(ctx, client, history, m)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    m.APIParam,
		Messages: openAIMessages(history, true),
	})
	if err != nil {
		return nil, classifyOpenAI(ctx, model.ProviderOpenAI, err)
	}
	a.t.log.Debug("provider request", "provider", model.ProviderOpenAI, "model", m.APIParam, "choices", len(resp.Choices))

	if len(resp.Choices) == 0 {
		return Text{Content: "No response"}, nil
	}
	return Text{Content: resp.Choices[0].Message.Content}, nil
}

// generateImage prompts the generator with the newest message's text.
func (a *OpenAI) generateImage(ctx context.Context, client *openai.Client, history []model.Message, m model.AIModel) (Outcome, error) {
	if len(history) == 0 {
		return nil, &Error{Kind: KindProvider, Provider: model.ProviderOpenAI, Detail: "no prompt to generate an image from"}
	}
	prompt := history[len(history)-1].Content

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          m.APIParam,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, classifyOpenAI(ctx, model.ProviderOpenAI, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, &Error{Kind: KindProvider, Provider: model.ProviderOpenAI, Detail: "Failed to generate image with DALL-E"}
	}
	return GeneratedImage{URL: resp.Data[0].URL}, nil
}

// newOpenAIClient builds a go-openai client against the transport's endpoint.
// Clients are cheap and rebuilt per call so key rotation takes effect at once.
func newOpenAIClient(key string, t *transport) *openai.Client {
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = t.baseURL
	cfg.HTTPClient = t.client
	return openai.NewClientWithConfig(cfg)
}

// openAIMessages converts history. With images enabled, a message carrying
// inline images becomes a multi-part content array of text then images.
func openAIMessages(history []model.Message, images bool) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, h := range history {
		msg := openai.ChatCompletionMessage{Role: openAIRole(h.Role)}
		attached := h.ImageAttachments()
		if !images || len(attached) == 0 {
			msg.Content = h.Content
			msgs = append(msgs, msg)
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(attached)+1)
		if h.Content != "" {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: h.Content})
		}
		for _, u := range attached {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: u},
			})
		}
		msg.MultiContent = parts
		msgs = append(msgs, msg)
	}
	return msgs
}

func openAIRole(r model.Role) string {
	switch r {
	case model.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case model.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// classifyOpenAI maps go-openai errors onto adapter error kinds.
func classifyOpenAI(ctx context.Context, p model.Provider, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return cancelled(p, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if apiErr.HTTPStatusCode != 0 {
			detail = fmt.Sprintf("%s API error (HTTP %d): %s", p.Label(), apiErr.HTTPStatusCode, apiErr.Message)
		}
		return &Error{Kind: KindProvider, Provider: p, Detail: detail, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Kind:     KindProvider,
			Provider: p,
			Detail:   httpErrorDetail(p, reqErr.HTTPStatusCode, "", []byte(reqErr.Error())),
			Err:      err,
		}
	}

	return transportFailure(ctx, p, err)
}
