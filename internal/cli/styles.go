// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// ValueStyle is used for field values
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")) // White

	// SuccessStyle is used for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle is used for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// DimStyle is used for secondary text
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))
)

// writeField prints one "label value" row.
func writeField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(label), ValueStyle.Render(value))
}
