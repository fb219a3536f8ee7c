// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func renderPlain(t *testing.T, input string, width int) string {
	t.Helper()
	return ansi.Strip(RenderMarkdown(input, DefaultTheme(), width))
}

func TestRenderMarkdownEmpty(t *testing.T) {
	if got := RenderMarkdown("", DefaultTheme(), 80); got != "" {
		t.Errorf("rendering empty input = %q, want empty", got)
	}
}

func TestRenderMarkdownParagraphReflow(t *testing.T) {
	// A hard-wrapped source paragraph reflows to the render width:
	// the soft break becomes a space.
	input := "one two\nthree four"
	got := renderPlain(t, input, 80)
	if got != "one two three four" {
		t.Errorf("reflowed paragraph = %q, want single line", got)
	}

	narrow := renderPlain(t, "alpha beta gamma delta", 12)
	if !strings.Contains(narrow, "\n") {
		t.Errorf("narrow render = %q, want wrapped output", narrow)
	}
	for _, line := range strings.Split(narrow, "\n") {
		if len(line) > 12 {
			t.Errorf("line %q exceeds width 12", line)
		}
	}
}

func TestRenderMarkdownEmphasis(t *testing.T) {
	styled := RenderMarkdown("plain **bold** *italic*", DefaultTheme(), 80)
	if ansi.Strip(styled) != "plain bold italic" {
		t.Errorf("stripped emphasis = %q", ansi.Strip(styled))
	}
	// Styling must actually be present: the output is longer than the
	// text because of the SGR sequences.
	if len(styled) <= len("plain bold italic") {
		t.Error("emphasis produced no styling")
	}
}

func TestRenderMarkdownFencedCode(t *testing.T) {
	input := "```go\nfunc main() {}\n```"
	got := renderPlain(t, input, 80)
	if !strings.Contains(got, "func main() {}") {
		t.Errorf("code block lost content: %q", got)
	}
}

func TestRenderMarkdownList(t *testing.T) {
	got := renderPlain(t, "- first\n- second", 80)
	lines := strings.Split(got, "\n")
	var items []string
	for _, line := range lines {
		if strings.HasPrefix(line, "- ") {
			items = append(items, line)
		}
	}
	if len(items) != 2 {
		t.Fatalf("got %d bullets in %q, want 2", len(items), got)
	}
	if items[0] != "- first" || items[1] != "- second" {
		t.Errorf("items = %v", items)
	}
}

func TestRenderMarkdownOrderedList(t *testing.T) {
	got := renderPlain(t, "1. first\n2. second", 80)
	if !strings.Contains(got, "1. first") || !strings.Contains(got, "2. second") {
		t.Errorf("ordered list = %q", got)
	}
}

func TestRenderMarkdownBlockquote(t *testing.T) {
	got := renderPlain(t, "> quoted text", 80)
	if !strings.Contains(got, "│ quoted text") {
		t.Errorf("blockquote = %q, want prefixed line", got)
	}
}

func TestRenderMarkdownLink(t *testing.T) {
	got := renderPlain(t, "see [the site](https://example.org)", 80)
	if !strings.Contains(got, "the site") || !strings.Contains(got, "(https://example.org)") {
		t.Errorf("link = %q", got)
	}
}
