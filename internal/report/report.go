// Package report renders analysis results as Markdown, JSON, plain text, or
// sanitized HTML.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// Format selects the output representation.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// ParseFormat accepts the format names and common aliases (md, txt, plain).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "text", "txt", "plain", "plain-text":
		return FormatText, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatText:
		return ".txt"
	case FormatHTML:
		return ".html"
	default:
		return ".md"
	}
}

// Document is the input of every renderer: a ticket and its analysis.
type Document struct {
	Ticket ticket.Ticket   `json:"ticket"`
	Result analysis.Result `json:"analysis"`
}

// Options control display only; the underlying result is never truncated.
type Options struct {
	// MaxItemsPerSection caps list sections in Markdown, text, and HTML
	// output. Zero means unlimited.
	MaxItemsPerSection int
}

// Renderer is a pure function of its Options and the Document.
type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	if opts.MaxItemsPerSection < 0 {
		opts.MaxItemsPerSection = 0
	}
	return &Renderer{opts: opts}
}

// Render produces doc in the requested format.
func (r *Renderer) Render(doc Document, format Format) (string, error) {
	switch format {
	case FormatMarkdown:
		return r.Markdown(doc), nil
	case FormatJSON:
		return r.JSON(doc)
	case FormatText:
		return r.Text(doc)
	case FormatHTML:
		return r.HTML(doc)
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

// JSON serializes the document structurally, without reordering or capping.
func (r *Renderer) JSON(doc Document) (string, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	return string(b) + "\n", nil
}
