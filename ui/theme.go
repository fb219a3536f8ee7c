// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import "github.com/charmbracelet/lipgloss"

// Theme collects the colors used by the renderer and the app chrome.
type Theme struct {
	NormalText lipgloss.TerminalColor
	FaintText  lipgloss.TerminalColor
	Accent     lipgloss.TerminalColor
	Border     lipgloss.TerminalColor
	SenderName lipgloss.TerminalColor
	OwnName    lipgloss.TerminalColor
}

// DefaultTheme returns the standard perch palette (ANSI256).
func DefaultTheme() Theme {
	return Theme{
		NormalText: lipgloss.Color("252"),
		FaintText:  lipgloss.Color("243"),
		Accent:     lipgloss.Color("75"),
		Border:     lipgloss.Color("238"),
		SenderName: lipgloss.Color("114"),
		OwnName:    lipgloss.Color("215"),
	}
}
