// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/polychat/internal/dispatch"
	"github.com/jeranaias/polychat/internal/model"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for banners and section headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// PromptStyle renders the input prompt
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// CommandStyle highlights command names and identifiers
	CommandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // Green

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// InfoStyle is used for neutral notices
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")) // Blue

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// =============================================================================
// ROLE AND NOTICE STYLES
// =============================================================================

var (
	userRoleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantRoleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true) // Purple
	systemRoleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// RoleStyle returns the label style for a message role.
func RoleStyle(r model.Role) lipgloss.Style {
	switch r {
	case model.RoleUser:
		return userRoleStyle
	case model.RoleSystem:
		return systemRoleStyle
	default:
		return assistantRoleStyle
	}
}

// NoticeStyle returns the style for a notice variant.
func NoticeStyle(v dispatch.Variant) lipgloss.Style {
	switch v {
	case dispatch.VariantDestructive:
		return ErrorStyle
	case dispatch.VariantWarning:
		return WarningStyle
	default:
		return InfoStyle
	}
}

// RenderSeparator renders a horizontal separator line of the specified width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 30
	}
	return SeparatorStyle.Render(strings.Repeat("─", width))
}
