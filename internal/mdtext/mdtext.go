// ABOUTME: Renders assistant markdown into plain terminal text.
// ABOUTME: Goldmark AST walk with ANSI emphasis; degrades to plain text when piped.

// Package mdtext renders the lightweight markdown that assistant replies use
// (emphasis, lists, code spans, links) into readable terminal output. Color
// is applied through fatih/color, so NO_COLOR and non-TTY output degrade to
// plain text automatically.
package mdtext

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	boldText   = color.New(color.Bold)
	italicText = color.New(color.Italic)
	codeText   = color.New(color.FgCyan)
	linkText   = color.New(color.Underline)
)

// Render converts markdown source into terminal text. Unknown constructs
// fall back to their inline text content; the result never contains raw
// markdown syntax.
func Render(source string) string {
	src := []byte(source)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []string
	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		if b := renderBlock(child, src, ""); b != "" {
			blocks = append(blocks, b)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func renderBlock(n ast.Node, src []byte, indent string) string {
	switch b := n.(type) {
	case *ast.Heading:
		return indent + boldText.Sprint(renderInline(b, src))
	case *ast.Paragraph, *ast.TextBlock:
		return indent + renderInline(n, src)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return renderCodeLines(n, src, indent+"  ")
	case *ast.List:
		return renderList(b, src, indent)
	case *ast.Blockquote:
		var parts []string
		for child := b.FirstChild(); child != nil; child = child.NextSibling() {
			parts = append(parts, renderBlock(child, src, indent+"> "))
		}
		return strings.Join(parts, "\n")
	case *ast.ThematicBreak:
		return indent + strings.Repeat("─", 24)
	default:
		return indent + renderInline(n, src)
	}
}

func renderList(l *ast.List, src []byte, indent string) string {
	var lines []string
	number := l.Start
	if number == 0 {
		number = 1
	}

	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", number)
			number++
		}

		var parts []string
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			childIndent := indent + strings.Repeat(" ", len(marker))
			rendered := renderBlock(child, src, childIndent)
			if len(parts) == 0 {
				// First block sits on the marker line.
				rendered = indent + marker + strings.TrimPrefix(rendered, childIndent)
			}
			parts = append(parts, rendered)
		}
		lines = append(lines, strings.Join(parts, "\n"))
	}
	return strings.Join(lines, "\n")
}

func renderCodeLines(n ast.Node, src []byte, indent string) string {
	var lines []string
	segments := n.Lines()
	for i := range segments.Len() {
		seg := segments.At(i)
		line := strings.TrimRight(string(seg.Value(src)), "\n")
		lines = append(lines, indent+codeText.Sprint(line))
	}
	return strings.Join(lines, "\n")
}

func renderInline(n ast.Node, src []byte) string {
	var b strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		b.WriteString(renderInlineNode(child, src))
	}
	return b.String()
}

func renderInlineNode(n ast.Node, src []byte) string {
	switch i := n.(type) {
	case *ast.Text:
		out := string(i.Segment.Value(src))
		if i.SoftLineBreak() {
			out += " "
		} else if i.HardLineBreak() {
			out += "\n"
		}
		return out
	case *ast.String:
		return string(i.Value)
	case *ast.Emphasis:
		inner := renderInline(i, src)
		if i.Level >= 2 {
			return boldText.Sprint(inner)
		}
		return italicText.Sprint(inner)
	case *ast.CodeSpan:
		return codeText.Sprint(renderInline(i, src))
	case *ast.Link:
		label := renderInline(i, src)
		dest := string(i.Destination)
		if label == "" || label == dest {
			return linkText.Sprint(dest)
		}
		return label + " (" + linkText.Sprint(dest) + ")"
	case *ast.AutoLink:
		return linkText.Sprint(string(i.URL(src)))
	case *ast.Image:
		return renderInline(i, src)
	default:
		return renderInline(n, src)
	}
}
