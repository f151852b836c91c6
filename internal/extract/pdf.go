package extract

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Design types reported for a PDF.
const (
	DesignWireframe = "wireframe"
	DesignMockup    = "mockup"
	DesignMixed     = "mixed"
	DesignDoc       = "doc"
)

// PDFFacts summarizes a design export.
type PDFFacts struct {
	Path       string   `json:"path"`
	Pages      int      `json:"pages"`
	Screens    []string `json:"screens"`
	Components []string `json:"components"`
	Elements   []string `json:"elements"`
	DesignType string   `json:"design_type"`
	Complexity float64  `json:"complexity"`
}

type pdfPage struct {
	number int
	text   string
	images int
}

var (
	wireframeIndicators = []string{
		"wireframe", "mockup", "prototype", "sketch", "draft",
		"layout", "structure", "framework", "placeholder",
	}
	pdfScreenKeywords = []string{
		"login", "signup", "register", "dashboard", "profile", "settings",
		"home", "search", "checkout", "cart", "onboarding",
		"advisor", "client", "appointment", "calendar", "booking",
	}
	pdfComponentKeywords = []string{
		"button", "input", "field", "dropdown", "select", "checkbox",
		"radio", "toggle", "slider", "card", "modal", "dialog",
		"header", "footer", "nav", "menu", "tab", "sidebar",
		"toolbar", "breadcrumb", "pagination", "table", "chart",
		"graph", "avatar", "badge", "chip", "tag", "icon",
	}
	screenPhrase = regexp.MustCompile(`\b([a-z]{3,})\s+(?:screen|page|view|dashboard)\b`)
)

// ExtractPDF reads the text and image counts of every page in a PDF and
// classifies the design it contains.
func ExtractPDF(path string) (PDFFacts, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return PDFFacts{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var pages []pdfPage
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return PDFFacts{}, fmt.Errorf("reading page %d: %w", i, err)
		}
		pages = append(pages, pdfPage{number: i, text: text, images: countImages(p)})
	}

	facts := analyzePDF(pages)
	facts.Path = path
	return facts, nil
}

func countImages(p pdf.Page) int {
	xobj := p.Resources().Key("XObject")
	n := 0
	for _, k := range xobj.Keys() {
		if xobj.Key(k).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}

func analyzePDF(pages []pdfPage) PDFFacts {
	facts := PDFFacts{Pages: len(pages)}
	screens := map[string]struct{}{}
	components := map[string]struct{}{}
	var all strings.Builder
	wireframes, mockups := 0, 0

	for _, p := range pages {
		lower := strings.ToLower(p.text)
		all.WriteString(lower)
		all.WriteByte('\n')

		switch {
		case containsAny(lower, wireframeIndicators):
			wireframes++
			facts.Elements = append(facts.Elements, fmt.Sprintf("Page %d: wireframe", p.number))
		case p.images > 0:
			mockups++
			facts.Elements = append(facts.Elements, fmt.Sprintf("Page %d: high-fidelity mockup", p.number))
		}
		for _, m := range screenPhrase.FindAllStringSubmatch(lower, -1) {
			screens[titleWord(m[1])+" Screen"] = struct{}{}
		}
	}

	text := all.String()
	for _, k := range pdfScreenKeywords {
		if strings.Contains(text, k) {
			screens[titleWord(k)+" Screen"] = struct{}{}
		}
	}
	for _, k := range pdfComponentKeywords {
		if strings.Contains(text, k) {
			components[titleWord(k)] = struct{}{}
		}
	}

	facts.Screens = sortedKeys(screens)
	facts.Components = sortedKeys(components)
	facts.DesignType = designType(wireframes, mockups)
	facts.Complexity = pdfComplexity(len(pages), len(facts.Screens), len(facts.Components))
	return facts
}

func designType(wireframes, mockups int) string {
	switch {
	case wireframes > 0 && mockups > 0:
		return DesignMixed
	case wireframes > 0:
		return DesignWireframe
	case mockups > 0:
		return DesignMockup
	default:
		return DesignDoc
	}
}

func pdfComplexity(pages, screens, components int) float64 {
	score := math.Min(float64(pages), 2) +
		math.Min(float64(screens)*0.8, 3) +
		math.Min(float64(components)*0.3, 3)
	return math.Round(math.Min(score, 10)*10) / 10
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
