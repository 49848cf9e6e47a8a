// Package util provides small helpers shared across montage packages.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Truncate shortens s to maxWidth visual columns, adding "..." when cut.
// ANSI escape codes and wide characters are measured correctly, so styled
// table cells keep their colors.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// SingleLine collapses every run of whitespace (newlines included) into a
// single space. Prompts and rationales are multi-line; table cells are not.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Cell prepares free text for a fixed-width table cell.
func Cell(s string, maxWidth int) string {
	return Truncate(SingleLine(s), maxWidth)
}
