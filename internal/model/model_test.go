// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "Hello there", "Hello there"},
		{"exactly six words", "one two three four five six", "one two three four five six"},
		{"seven words", "one two three four five six seven", "one two three four five six..."},
		{"extra whitespace", "  spaced   out\ttext ", "spaced out text"},
		{"empty", "   ", DefaultTitle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveTitle(tc.content))
		})
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessageWithFiles_AlignsAttachments(t *testing.T) {
	files := []EncodedFile{
		{Name: "a.png", URL: "data:image/png;base64,AAAA"},
		{Name: "b.pdf", URL: "data:application/pdf;base64,BBBB"},
	}

	msg := NewMessageWithFiles(RoleUser, "look", files)

	require.True(t, msg.AttachmentsAligned())
	assert.Equal(t, []string{"a.png", "b.pdf"}, msg.FileNames)
	assert.Equal(t, []string{"data:image/png;base64,AAAA"}, msg.ImageAttachments())
	assert.Equal(t, ContentText, msg.Kind())
}

func TestNewMessageWithFiles_NoFilesLeavesListsNil(t *testing.T) {
	msg := NewMessageWithFiles(RoleUser, "plain", nil)

	assert.Nil(t, msg.FileURLs)
	assert.Nil(t, msg.FileNames)
	assert.False(t, msg.HasAttachments())
}

func TestMessage_KindDefaultsToText(t *testing.T) {
	assert.Equal(t, ContentText, Message{}.Kind())
	assert.Equal(t, ContentImage, NewImageMessage("x", "data:image/png;base64,AA").Kind())
}

func TestMessage_CloneIsDeep(t *testing.T) {
	orig := NewMessageWithFiles(RoleUser, "x", []EncodedFile{{Name: "n", URL: "u"}})
	clone := orig.Clone()
	clone.FileNames[0] = "changed"

	assert.Equal(t, "n", orig.FileNames[0])
}

func TestMessage_Preview(t *testing.T) {
	msg := NewMessage(RoleUser, strings.Repeat("é", 20))
	assert.Equal(t, strings.Repeat("é", 7)+"...", msg.Preview(10))
	assert.Equal(t, msg.Content, msg.Preview(50))
}

// =============================================================================
// DATA URL TESTS
// =============================================================================

func TestDataURL_RoundTrip(t *testing.T) {
	u := EncodeDataURL("image/png", []byte{0x89, 'P', 'N', 'G'})
	require.True(t, IsImageDataURL(u))

	mediaType, payload, err := ParseDataURL(u)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, "iVBORw==", payload)
}

func TestParseDataURL_Rejects(t *testing.T) {
	for _, u := range []string{"https://example.com/a.png", "data:image/png,raw", "data:image/png;base64"} {
		_, _, err := ParseDataURL(u)
		assert.ErrorIs(t, err, ErrInvalidDataURL, u)
	}
}

func TestAttachment_IsImage(t *testing.T) {
	assert.True(t, Attachment{MediaType: "image/jpeg"}.IsImage())
	assert.True(t, Attachment{MediaType: "IMAGE/PNG"}.IsImage())
	assert.False(t, Attachment{MediaType: "application/pdf"}.IsImage())
	assert.False(t, Attachment{}.IsImage())
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestNewChat(t *testing.T) {
	chat := NewChat("gpt-4o", true)

	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, DefaultTitle, chat.Title)
	assert.True(t, chat.Temporary)
	assert.False(t, chat.UpdatedAt.Before(chat.CreatedAt))
	assert.NotNil(t, chat.Messages)
}

func TestChat_CloneIsDeep(t *testing.T) {
	chat := NewChat("gpt-4o", false)
	chat.Messages = append(chat.Messages, NewMessage(RoleUser, "hi"))

	clone := chat.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages = append(clone.Messages, NewMessage(RoleAssistant, "extra"))

	assert.Equal(t, "hi", chat.Messages[0].Content)
	assert.Len(t, chat.Messages, 1)
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestCatalog_HaveRequiredFields(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Catalog {
		t.Run(m.ID, func(t *testing.T) {
			assert.NotEmpty(t, m.Name)
			assert.NotEmpty(t, m.APIParam)
			assert.Positive(t, m.MaxTokens)
			assert.Contains(t, []Provider{ProviderOpenAI, ProviderClaude, ProviderLlama, ProviderGemini}, m.Provider)
			assert.False(t, seen[m.ID], "duplicate model ID")
		})
		seen[m.ID] = true
	}
}

func TestGetModel_Default(t *testing.T) {
	m, ok := GetModel(DefaultModelID)
	require.True(t, ok)
	assert.Equal(t, ProviderOpenAI, m.Provider)

	_, ok = GetModel("no-such-model")
	assert.False(t, ok)
}

func TestProviderGroups_PreserveCatalogOrder(t *testing.T) {
	groups := ProviderGroups()
	require.Len(t, groups, 4)
	assert.Equal(t, ProviderOpenAI, groups[0].Provider)
	assert.Equal(t, "Anthropic Claude", groups[1].Label)

	total := 0
	for _, g := range groups {
		total += len(g.Models)
	}
	assert.Equal(t, len(Catalog), total)
}

func TestAIModel_CapabilitiesString(t *testing.T) {
	m, _ := GetModel("dall-e-3")
	assert.Equal(t, "Image generation", m.CapabilitiesString())
	assert.Equal(t, "Text only", AIModel{}.CapabilitiesString())
}
