package report

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	htmlPolicy   *bluemonday.Policy
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithXHTML()),
		)
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return markdown
}

// Text renders the Markdown report and strips its punctuation. Headings stay
// as their own lines; list markers, emphasis, and link syntax are removed.
func (r *Renderer) Text(doc Document) (string, error) {
	source := []byte(r.Markdown(doc))
	document := getMarkdown().Parser().Parse(text.NewReader(source))

	w := &plainWriter{source: source}
	if err := ast.Walk(document, w.walk); err != nil {
		return "", fmt.Errorf("rendering text report: %w", err)
	}
	return strings.TrimRight(w.out.String(), "\n") + "\n", nil
}

// HTML renders the Markdown report to HTML and sanitizes it.
func (r *Renderer) HTML(doc Document) (string, error) {
	md := getMarkdown()
	var buf bytes.Buffer
	if err := md.Convert([]byte(r.Markdown(doc)), &buf); err != nil {
		return "", fmt.Errorf("rendering html report: %w", err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}

// plainWriter walks a goldmark AST and accumulates plain text.
type plainWriter struct {
	source []byte
	out    strings.Builder
	line   strings.Builder
	// ordinal counters for the enclosing ordered lists, innermost last.
	ordinals []int
}

func (w *plainWriter) flush() {
	if w.line.Len() == 0 {
		return
	}
	w.out.WriteString(strings.TrimRight(w.line.String(), " "))
	w.out.WriteString("\n")
	w.line.Reset()
}

func (w *plainWriter) blank() {
	s := w.out.String()
	if s != "" && !strings.HasSuffix(s, "\n\n") {
		w.out.WriteString("\n")
	}
}

func (w *plainWriter) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Heading:
		if entering {
			w.blank()
		} else {
			w.flush()
			w.out.WriteString("\n")
		}

	case *ast.Paragraph, *ast.TextBlock:
		if !entering {
			w.flush()
			if _, inItem := node.Parent().(*ast.ListItem); !inItem {
				w.out.WriteString("\n")
			}
		}

	case *ast.List:
		if entering {
			if n.IsOrdered() {
				w.ordinals = append(w.ordinals, n.Start)
			} else {
				w.ordinals = append(w.ordinals, -1)
			}
		} else {
			w.ordinals = w.ordinals[:len(w.ordinals)-1]
			w.out.WriteString("\n")
		}

	case *ast.ListItem:
		if entering {
			depth := len(w.ordinals)
			w.line.WriteString(strings.Repeat("  ", depth))
			if i := len(w.ordinals) - 1; i >= 0 && w.ordinals[i] >= 0 {
				fmt.Fprintf(&w.line, "%d) ", w.ordinals[i])
				w.ordinals[i]++
			}
		} else {
			w.flush()
		}

	case *ast.Text:
		if entering {
			value := n.Segment.Value(w.source)
			if !n.IsRaw() {
				value = util.UnescapePunctuations(value)
			}
			w.line.Write(value)
			if n.SoftLineBreak() {
				w.line.WriteString(" ")
			}
			if n.HardLineBreak() {
				w.flush()
			}
		}

	case *ast.String:
		if entering {
			w.line.Write(n.Value)
		}

	case *ast.RawHTML:
		if entering {
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				w.line.Write(seg.Value(w.source))
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.AutoLink:
		if entering {
			w.line.Write(n.URL(w.source))
		}
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			w.blank()
		}
	}
	return ast.WalkContinue, nil
}
