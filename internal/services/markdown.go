package services

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown converts accumulated response text to HTML fragments. Raw HTML inside the text is not
// passed through, since the text comes from a model.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a Markdown renderer with GFM and highlighted code blocks using the given
// chroma style name.
func NewMarkdown(style string) Markdown {
	if style == "" {
		style = "github"
	}
	return Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle(style)),
			),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render converts text to HTML.
func (m Markdown) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return buf.String(), nil
}
