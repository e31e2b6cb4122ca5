// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the chatmux TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme holds the styled components for the application.
type Theme struct {
	// Layout dimensions
	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style

	// Message labels
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	ToolLabel      lipgloss.Style
	Reasoning      lipgloss.Style

	// Status line
	StatusBar    lipgloss.Style
	StatusError  lipgloss.Style
	StatusRetry  lipgloss.Style
	StatusCost   lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// Input area
	InputPrompt lipgloss.Style
}

// New creates the default theme.
func New() *Theme {
	return &Theme{
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		HeaderTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81")),

		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75")),
		AssistantLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("114")),
		ToolLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("179")),
		Reasoning: lipgloss.NewStyle().
			Faint(true).
			Italic(true),

		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("246")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		StatusError: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203")),
		StatusRetry: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		StatusCost: lipgloss.NewStyle().
			Foreground(lipgloss.Color("108")),
		ShortcutKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")),
		ShortcutDesc: lipgloss.NewStyle().
			Faint(true),

		InputPrompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81")),
	}
}

// SetSize records the terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}
