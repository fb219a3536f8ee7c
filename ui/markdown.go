// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The goldmark parser is shared: its configuration never changes and
// Parse creates per-call state.
var (
	messageParser     goldmark.Markdown
	messageParserOnce sync.Once
)

func getMessageParser() goldmark.Markdown {
	messageParserOnce.Do(func() {
		messageParser = goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
		)
	})
	return messageParser
}

// RenderMarkdown renders a message body as styled terminal text
// wrapped to width. Soft line breaks become spaces so hard-wrapped
// source reflows at any terminal width; fenced code is highlighted
// with chroma.
func RenderMarkdown(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := getMessageParser().Parser().Parse(text.NewReader(source))

	// Force ANSI256: this output is always for terminal display, so
	// skip auto-detection, which yields uncolored output without a
	// TTY. SetColorProfile is needed because the lipgloss renderer
	// otherwise re-detects from the environment.
	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lipRenderer.SetColorProfile(termenv.ANSI256)

	r := &messageRenderer{
		source:      source,
		theme:       theme,
		width:       width,
		lipRenderer: lipRenderer,
	}
	ast.Walk(document, r.walk)

	return strings.TrimRight(r.output.String(), "\n")
}

// messageRenderer walks a goldmark AST and produces styled terminal
// text. A direct ast.Walk fits better than goldmark's renderer
// interface because paragraphs accumulate inline content and get
// word-wrapped as a unit when the paragraph closes. Chat messages are
// short, so only the node kinds that actually occur in them are
// handled: paragraphs, headings, emphasis, code, quotes, lists, and
// links.
type messageRenderer struct {
	source []byte
	theme  Theme
	width  int

	output strings.Builder
	inline strings.Builder

	// Prefix applied to every emitted line while inside blockquotes or
	// list items; bullet replaces it for a list item's first line.
	prefixStack []string
	linePrefix  string
	bullet      string

	boldCount          int
	italicCount        int
	strikethroughCount int

	listDepth   int
	listCounter []int // per depth; 0 for unordered

	lipRenderer *lipgloss.Renderer
}

func (r *messageRenderer) newStyle() lipgloss.Style {
	return r.lipRenderer.NewStyle()
}

func (r *messageRenderer) currentWidth() int {
	width := r.width - len(r.linePrefix)
	if width < 10 {
		width = 10
	}
	return width
}

func (r *messageRenderer) pushPrefix(prefix string) {
	r.prefixStack = append(r.prefixStack, prefix)
	r.linePrefix += prefix
}

func (r *messageRenderer) popPrefix() {
	if len(r.prefixStack) == 0 {
		return
	}
	top := r.prefixStack[len(r.prefixStack)-1]
	r.prefixStack = r.prefixStack[:len(r.prefixStack)-1]
	r.linePrefix = r.linePrefix[:len(r.linePrefix)-len(top)]
}

// writeBlock emits wrapped content, prefixing the first line with the
// pending bullet when one is set and every other line with the
// current prefix.
func (r *messageRenderer) writeBlock(content string) {
	for index, line := range strings.Split(content, "\n") {
		if index == 0 && r.bullet != "" {
			r.output.WriteString(r.bullet)
			r.bullet = ""
		} else {
			r.output.WriteString(r.linePrefix)
		}
		r.output.WriteString(line)
		r.output.WriteString("\n")
	}
}

func (r *messageRenderer) flushInline() {
	content := r.inline.String()
	r.inline.Reset()
	if content == "" {
		return
	}
	r.writeBlock(ansi.Wrap(content, r.currentWidth(), " ,.;-+|"))
}

func (r *messageRenderer) styledText(content string) string {
	style := r.newStyle().Foreground(r.theme.NormalText)
	if r.boldCount > 0 {
		style = style.Bold(true)
	}
	if r.italicCount > 0 {
		style = style.Italic(true)
	}
	if r.strikethroughCount > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

func (r *messageRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			r.inline.Reset()
		} else {
			r.flushInline()
		}

	case ast.KindHeading:
		if entering {
			r.inline.Reset()
		} else {
			content := ansi.Strip(r.inline.String())
			r.inline.Reset()
			if content != "" {
				bold := r.newStyle().Bold(true).Foreground(r.theme.Accent)
				r.writeBlock(ansi.Wrap(bold.Render(content), r.currentWidth(), " ,.;-+|"))
			}
		}

	case ast.KindFencedCodeBlock:
		if entering {
			r.renderFence(node.(*ast.FencedCodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			faint := r.newStyle().Foreground(r.theme.FaintText)
			for _, line := range blockLines(node, r.source) {
				r.writeBlock(faint.Render(line))
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			r.pushPrefix("│ ")
		} else {
			r.popPrefix()
		}

	case ast.KindList:
		if entering {
			start := 0
			if list := node.(*ast.List); list.IsOrdered() {
				start = list.Start
			}
			r.listDepth++
			r.listCounter = append(r.listCounter, start)
		} else {
			r.listDepth--
			r.listCounter = r.listCounter[:len(r.listCounter)-1]
		}

	case ast.KindListItem:
		if entering {
			counter := &r.listCounter[len(r.listCounter)-1]
			bullet := "- "
			if *counter > 0 {
				bullet = fmt.Sprintf("%d. ", *counter)
				*counter++
			}
			r.bullet = r.linePrefix + bullet
			r.pushPrefix(strings.Repeat(" ", len(bullet)))
		} else {
			r.popPrefix()
		}

	case ast.KindThematicBreak:
		if entering {
			rule := r.newStyle().Foreground(r.theme.Border)
			r.writeBlock(rule.Render(strings.Repeat("─", r.currentWidth())))
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			r.inline.WriteString(r.styledText(string(textNode.Segment.Value(r.source))))
			if textNode.SoftLineBreak() {
				// Soft breaks become spaces so the paragraph reflows
				// at the terminal width.
				r.inline.WriteString(" ")
			}
			if textNode.HardLineBreak() {
				r.inline.WriteString("\n")
			}
		}

	case ast.KindString:
		if entering {
			r.inline.WriteString(r.styledText(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		emphasis := node.(*ast.Emphasis)
		delta := -1
		if entering {
			delta = 1
		}
		if emphasis.Level >= 2 {
			r.boldCount += delta
		} else {
			r.italicCount += delta
		}

	case extast.KindStrikethrough:
		if entering {
			r.strikethroughCount++
		} else {
			r.strikethroughCount--
		}

	case ast.KindCodeSpan:
		if entering {
			var code strings.Builder
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				switch c := child.(type) {
				case *ast.Text:
					code.Write(c.Segment.Value(r.source))
				case *ast.String:
					code.Write(c.Value)
				}
			}
			faint := r.newStyle().Foreground(r.theme.FaintText)
			r.inline.WriteString(faint.Render(code.String()))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			link := node.(*ast.Link)
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				ast.Walk(child, r.walk)
			}
			if url := string(link.Destination); url != "" {
				faint := r.newStyle().Foreground(r.theme.FaintText)
				r.inline.WriteString(" " + faint.Render("("+url+")"))
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(r.source))
			faint := r.newStyle().Foreground(r.theme.FaintText)
			r.inline.WriteString(faint.Render(url))
		}
	}

	return ast.WalkContinue, nil
}

// renderFence emits a fenced code block, chroma-highlighted when the
// fence names a language chroma knows.
func (r *messageRenderer) renderFence(node *ast.FencedCodeBlock) {
	language := string(node.Language(r.source))
	code := strings.Join(blockLines(node, r.source), "\n")

	highlighted := ""
	if language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code+"\n", language, "terminal256", "monokai"); err == nil {
			highlighted = strings.TrimRight(buffer.String(), "\n")
		}
	}
	if highlighted == "" {
		highlighted = r.newStyle().Foreground(r.theme.FaintText).Render(code)
	}

	for _, line := range strings.Split(highlighted, "\n") {
		r.writeBlock(line)
	}
}

// blockLines collects a block node's raw source lines, trailing
// newlines stripped.
func blockLines(node ast.Node, source []byte) []string {
	var raw strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		raw.Write(segment.Value(source))
	}
	return strings.Split(strings.TrimRight(raw.String(), "\n"), "\n")
}
