package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// DefaultWidth is the wrap width used when the terminal size is unknown.
const DefaultWidth = 80

// Renderer turns Markdown replies into terminal output.
type Renderer func(markdown string) string

// NewRenderer returns a glamour renderer wrapped at width columns. If the
// renderer cannot be built, or a reply fails to render, the Markdown is
// returned as is.
func NewRenderer(width int) Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return Plain
	}
	return func(markdown string) string {
		out, err := r.Render(markdown)
		if err != nil {
			return Plain(markdown)
		}
		return strings.TrimRight(out, "\n") + "\n"
	}
}

// Plain renders nothing: it only normalizes the trailing newline.
func Plain(markdown string) string {
	return strings.TrimRight(markdown, "\n") + "\n"
}
