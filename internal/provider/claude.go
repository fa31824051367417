// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jeranaias/polychat/internal/model"
)

const (
	// DefaultClaudeURL is the Anthropic API root.
	DefaultClaudeURL = "https://api.anthropic.com"

	// AnthropicVersion is sent on every Messages API call.
	AnthropicVersion = "2023-06-01"

	claudeSystemPrompt = "You are a helpful AI assistant."
	claudeMaxTokens    = 1024
)

// Claude serves Anthropic models through the Messages API.
type Claude struct {
	keys *Keyring
	t    transport
}

// NewClaude creates the Claude adapter.
func NewClaude(keys *Keyring, opts Options) *Claude {
	return &Claude{keys: keys, t: newTransport(model.ProviderClaude, DefaultClaudeURL, opts)}
}

// Provider implements Adapter.
func (a *Claude) Provider() model.Provider { return model.ProviderClaude }

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system"`
	MaxTokens int             `json:"max_tokens"`
}

type claudeResponse struct {
	Content []claudeBlock `json:"content"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke implements Adapter.
func (a *Claude) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (Outcome, error) {
	key, err := requireKey(a.keys, model.ProviderClaude)
	if err != nil {
		return nil, err
	}

	maxTokens := m.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeMaxTokens
	}
	req := claudeRequest{
		Model:     m.APIParam,
		Messages:  claudeMessages(history),
		System:    claudeSystemPrompt,
		MaxTokens: maxTokens,
	}

	header := http.Header{}
	header.Set("x-api-key", key)
	header.Set("anthropic-version", AnthropicVersion)

	var resp claudeResponse
	endpoint := strings.TrimRight(a.t.baseURL, "/") + "/v1/messages"
	if err := a.t.postJSON(ctx, endpoint, header, req, &resp, claudeErrorDetail); err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return Text{Content: block.Text}, nil
		}
	}
	return Text{Content: "No response from Claude"}, nil
}

// claudeMessages converts history. Image attachments follow the text block
// as base64 source blocks.
func claudeMessages(history []model.Message) []claudeMessage {
	msgs := make([]claudeMessage, 0, len(history))
	for _, h := range history {
		role := "user"
		if h.Role == model.RoleAssistant {
			role = "assistant"
		}
		var images []claudeBlock
		for _, u := range h.ImageAttachments() {
			mediaType, data, err := model.ParseDataURL(u)
			if err != nil {
				continue
			}
			images = append(images, claudeBlock{
				Type:   "image",
				Source: &claudeSource{Type: "base64", MediaType: mediaType, Data: data},
			})
		}
		// An attachment-only turn carries no text block.
		var blocks []claudeBlock
		if h.Content != "" || len(images) == 0 {
			blocks = append(blocks, claudeBlock{Type: "text", Text: h.Content})
		}
		blocks = append(blocks, images...)
		msgs = append(msgs, claudeMessage{Role: role, Content: blocks})
	}
	return msgs
}

func claudeErrorDetail(status int, body []byte) string {
	var e claudeErrorResponse
	_ = json.Unmarshal(body, &e)
	return httpErrorDetail(model.ProviderClaude, status, e.Error.Message, body)
}
