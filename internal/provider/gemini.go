// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/jeranaias/polychat/internal/model"
)

// DefaultGeminiURL is the Generative Language API root.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// Gemini serves Google models through generateContent.
type Gemini struct {
	keys *Keyring
	t    transport
}

// NewGemini creates the Gemini adapter.
func NewGemini(keys *Keyring, opts Options) *Gemini {
	return &Gemini{keys: keys, t: newTransport(model.ProviderGemini, DefaultGeminiURL, opts)}
}

// Provider implements Adapter.
func (a *Gemini) Provider() model.Provider { return model.ProviderGemini }

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Invoke implements Adapter.
func (a *Gemini) Invoke(ctx context.Context, history []model.Message, m model.AIModel) (Outcome, error) {
	key, err := requireKey(a.keys, model.ProviderGemini)
	if err != nil {
		return nil, err
	}

	req := geminiRequest{
		Contents:         geminiContents(history),
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: m.MaxTokens},
	}

	endpoint := strings.TrimRight(a.t.baseURL, "/") +
		"/v1beta/models/" + url.PathEscape(m.APIParam) + ":generateContent?key=" + url.QueryEscape(key)

	var resp geminiResponse
	if err := a.t.postJSON(ctx, endpoint, nil, req, &resp, geminiErrorDetail); err != nil {
		return nil, err
	}

	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				return Text{Content: part.Text}, nil
			}
		}
	}
	return Text{Content: "No response from Gemini"}, nil
}

// geminiContents converts history. Gemini names the assistant "model".
func geminiContents(history []model.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(history))
	for _, h := range history {
		role := "user"
		if h.Role == model.RoleAssistant {
			role = "model"
		}
		images := h.ImageAttachments()
		var parts []geminiPart
		if h.Content != "" || len(images) == 0 {
			parts = append(parts, geminiPart{Text: h.Content})
		}
		for _, u := range images {
			mimeType, data, err := model.ParseDataURL(u)
			if err != nil {
				continue
			}
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mimeType, Data: data}})
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}
	return contents
}

func geminiErrorDetail(status int, body []byte) string {
	var e geminiErrorResponse
	_ = json.Unmarshal(body, &e)
	return httpErrorDetail(model.ProviderGemini, status, e.Error.Message, body)
}
