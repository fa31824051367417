// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// PROVIDER TYPE
// =============================================================================

// Provider identifies the AI vendor behind a model.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderLlama  Provider = "llama"
	ProviderGemini Provider = "gemini"
)

// Label returns the display label used for provider groups.
func (p Provider) Label() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderClaude:
		return "Anthropic Claude"
	case ProviderLlama:
		return "Meta Llama"
	case ProviderGemini:
		return "Google Gemini"
	default:
		return string(p)
	}
}

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// AIModel is a static catalog entry. It is never mutated at runtime.
//
// Upload capability (SupportsImages, SupportsFiles) and generation capability
// (IsImageGenerator) are independent flags.
type AIModel struct {
	// ID is the catalog identifier stored on chats
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	Provider    Provider `json:"provider"`
	Description string   `json:"description"`

	// Upload capabilities
	SupportsImages bool `json:"supportsImages"`
	SupportsFiles  bool `json:"supportsFiles"`

	// IsImageGenerator marks text-to-image models
	IsImageGenerator bool `json:"isImageGenerator,omitempty"`

	// APIParam is the model name sent on the wire
	APIParam string `json:"apiParam"`

	// MaxTokens is the output token budget for a single response
	MaxTokens int `json:"maxTokens"`
}

// CapabilitiesString returns a comma-separated list of model capabilities.
func (m AIModel) CapabilitiesString() string {
	caps := []string{}
	if m.IsImageGenerator {
		caps = append(caps, "Image generation")
	}
	if m.SupportsImages {
		caps = append(caps, "Image uploads")
	}
	if m.SupportsFiles {
		caps = append(caps, "Document uploads")
	}
	if len(caps) == 0 {
		return "Text only"
	}
	return strings.Join(caps, ", ")
}

// ContextString returns a formatted token budget string.
func (m AIModel) ContextString() string {
	if m.MaxTokens >= 1000 {
		return fmt.Sprintf("%dK tokens", m.MaxTokens/1000)
	}
	return fmt.Sprintf("%d tokens", m.MaxTokens)
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultModelID is the model new chats are bound to.
const DefaultModelID = "gpt-4o"

// Catalog lists every known model in display order.
var Catalog = []AIModel{
	// OpenAI
	{
		ID:             "gpt-4o",
		Name:           "GPT-4o",
		Provider:       ProviderOpenAI,
		Description:    "Fast multimodal model with vision",
		SupportsImages: true,
		APIParam:       "gpt-4o",
		MaxTokens:      4096,
	},
	{
		ID:             "gpt-4o-mini",
		Name:           "GPT-4o Mini",
		Provider:       ProviderOpenAI,
		Description:    "Cost-effective for simple tasks",
		SupportsImages: true,
		APIParam:       "gpt-4o-mini",
		MaxTokens:      4096,
	},
	{
		ID:               "dall-e-3",
		Name:             "DALL-E 3",
		Provider:         ProviderOpenAI,
		Description:      "Generates images from a text description",
		IsImageGenerator: true,
		APIParam:         "dall-e-3",
		MaxTokens:        4000,
	},

	// Anthropic Claude
	{
		ID:             "claude-3-5-sonnet",
		Name:           "Claude 3.5 Sonnet",
		Provider:       ProviderClaude,
		Description:    "Best balance of speed and capability",
		SupportsImages: true,
		SupportsFiles:  true,
		APIParam:       "claude-3-5-sonnet-20241022",
		MaxTokens:      1024,
	},
	{
		ID:             "claude-3-haiku",
		Name:           "Claude 3 Haiku",
		Provider:       ProviderClaude,
		Description:    "Fast and efficient for simple tasks",
		SupportsImages: true,
		APIParam:       "claude-3-haiku-20240307",
		MaxTokens:      1024,
	},

	// Meta Llama
	{
		ID:          "llama-3-70b",
		Name:        "Llama 3 70B",
		Provider:    ProviderLlama,
		Description: "Meta's versatile open-weights model",
		APIParam:    "llama3-70b",
		MaxTokens:   2048,
	},

	// Google Gemini
	{
		ID:             "gemini-1.5-pro",
		Name:           "Gemini 1.5 Pro",
		Provider:       ProviderGemini,
		Description:    "Long-context multimodal model",
		SupportsImages: true,
		SupportsFiles:  true,
		APIParam:       "gemini-1.5-pro",
		MaxTokens:      8192,
	},
	{
		ID:             "gemini-1.5-flash",
		Name:           "Gemini 1.5 Flash",
		Provider:       ProviderGemini,
		Description:    "Low latency multimodal model",
		SupportsImages: true,
		APIParam:       "gemini-1.5-flash",
		MaxTokens:      8192,
	},
}

// ProviderGroup is a set of catalog models sharing a provider.
type ProviderGroup struct {
	Provider Provider
	Label    string
	Models   []AIModel
}

// =============================================================================
// MODEL LOOKUP FUNCTIONS
// =============================================================================

// GetModel looks up a catalog model by ID.
func GetModel(id string) (AIModel, bool) {
	for _, m := range Catalog {
		if m.ID == id {
			return m, true
		}
	}
	return AIModel{}, false
}

// GetModelsByProvider returns all models from a specific provider.
func GetModelsByProvider(provider Provider) []AIModel {
	result := []AIModel{}
	for _, m := range Catalog {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// ProviderGroups returns the catalog grouped by provider in display order.
func ProviderGroups() []ProviderGroup {
	var groups []ProviderGroup
	index := make(map[Provider]int)
	for _, m := range Catalog {
		i, ok := index[m.Provider]
		if !ok {
			i = len(groups)
			index[m.Provider] = i
			groups = append(groups, ProviderGroup{Provider: m.Provider, Label: m.Provider.Label()})
		}
		groups[i].Models = append(groups[i].Models, m)
	}
	return groups
}
