// Package tui renders command output for a terminal: markdown through
// glamour, status notices through lipgloss.
package tui

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer wraps Glamour for rendering markdown to styled terminal output.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer creates a MarkdownRenderer with the given glamour
// style ("dark", "light", "notty", ...) and word wrap width.
func NewMarkdownRenderer(style string, width int) (*MarkdownRenderer, error) {
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating glamour renderer: %w", err)
	}
	return &MarkdownRenderer{renderer: r}, nil
}

// Render processes markdown text into styled terminal output.
func (m *MarkdownRenderer) Render(md string) (string, error) {
	if md == "" {
		return "", nil
	}
	if m == nil || m.renderer == nil {
		return md, nil
	}
	return m.renderer.Render(md)
}
