package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		expected string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"tiny width returns ellipsis", "hello", 3, "..."},
		{"empty string", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.maxWidth); got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.expected)
			}
		})
	}
}

func TestTruncate_StyledText(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("cinematic documentary")
	got := Truncate(styled, 10)
	if w := lipgloss.Width(got); w > 10 {
		t.Errorf("visual width = %d, want <= 10", w)
	}
}

func TestSingleLine(t *testing.T) {
	in := "  open on a\n\tclose-up   shot \n"
	if got := SingleLine(in); got != "open on a close-up shot" {
		t.Errorf("SingleLine() = %q", got)
	}
}

func TestCell(t *testing.T) {
	if got := Cell("line one\nline two", 12); got != "line one ..." {
		t.Errorf("Cell() = %q", got)
	}
}
