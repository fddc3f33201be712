// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// STYLES
// =============================================================================

var (
	// Colors
	brandPrimary   = lipgloss.Color("#7C3AED") // Purple
	brandSecondary = lipgloss.Color("#06B6D4") // Cyan
	brandAccent    = lipgloss.Color("#10B981") // Emerald
	brandError     = lipgloss.Color("#EF4444") // Red
	textMuted      = lipgloss.Color("#6B7280") // Gray

	titleStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(brandAccent).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(brandError).
			Bold(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(brandSecondary).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandPrimary).
			Padding(0, 2)
)

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
