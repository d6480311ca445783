package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders comment and description markdown, rebuilding the glamour renderer
// when the wrap width or style changes.
type markdownRenderer struct {
	style    string
	width    int
	built    string
	renderer *glamour.TermRenderer
}

// render returns ANSI text for markdown, or the raw markdown when rendering fails.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	style := r.style
	if style == "" {
		style = "dark"
	}
	wrapWidth := max(width, 24)

	if r.renderer == nil || r.width != wrapWidth || r.built != style {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
		r.built = style
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// renderLines splits rendered markdown into rows, keeping blank rows.
func (r *markdownRenderer) renderLines(markdown string, width int) []string {
	rendered := r.render(markdown, width)
	if rendered == "" {
		return nil
	}
	return strings.Split(rendered, "\n")
}
