package services_test

import (
	"strings"
	"testing"

	"github.com/MegaGrindStone/duochat/internal/services"
)

func TestMarkdownRender(t *testing.T) {
	md := services.NewMarkdown("")

	tests := []struct {
		name     string
		text     string
		want     []string
		dontWant []string
	}{
		{
			name: "Emphasis",
			text: "Hello **world**",
			want: []string{"<strong>world</strong>"},
		},
		{
			name: "GFM table",
			text: "| a | b |\n|---|---|\n| 1 | 2 |",
			want: []string{"<table>", "<td>1</td>"},
		},
		{
			name: "Highlighted code block",
			text: "```go\nfunc main() {}\n```",
			want: []string{"<pre", "main"},
		},
		{
			name:     "Raw HTML is not passed through",
			text:     "<script>alert(1)</script>",
			dontWant: []string{"<script>"},
		},
		{
			name: "Empty text",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := md.Render(tt.text)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Render() = %q, want to contain %q", got, w)
				}
			}
			for _, w := range tt.dontWant {
				if strings.Contains(got, w) {
					t.Errorf("Render() = %q, want not to contain %q", got, w)
				}
			}
		})
	}
}
