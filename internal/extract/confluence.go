package extract

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/kalambet/ticketlens/internal/search"
	"golang.org/x/net/html"
)

// ConfluenceFacts is the knowledge-base context relevant to one ticket.
type ConfluenceFacts struct {
	Documents     []string `json:"documents"`
	Technologies  []string `json:"technologies"`
	BusinessRules []string `json:"business_rules"`
	Components    []string `json:"components"`
}

const (
	maxRelevantDocs = 5
	maxRulesPerDoc  = 2
	maxRulesPerText = 15
)

// ConfluenceDoc is one parsed page export.
type ConfluenceDoc struct {
	Title         string
	Technologies  []string
	BusinessRules []string
	Components    []string
	tokens        map[string]struct{}
}

// Confluence is an in-memory knowledge base built from exported pages.
type Confluence struct {
	docs []ConfluenceDoc
}

// LoadConfluence parses every .html, .htm, .md and .txt file under dir.
// Unreadable files are logged and skipped.
func LoadConfluence(dir string) (*Confluence, error) {
	c := &Confluence{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains([]string{".html", ".htm", ".md", ".txt"}, ext) {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			slog.Warn("skipping confluence export", "path", path, "error", err)
			return nil
		}
		defer f.Close()

		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		var doc ConfluenceDoc
		if ext == ".html" || ext == ".htm" {
			doc, err = ParseConfluenceHTML(f, title)
		} else {
			var b []byte
			b, err = io.ReadAll(f)
			doc = ParseConfluenceText(title, string(b))
		}
		if err != nil {
			slog.Warn("skipping confluence export", "path", path, "error", err)
			return nil
		}
		c.Add(doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading confluence exports: %w", err)
	}
	return c, nil
}

// Add puts a parsed document into the knowledge base.
func (c *Confluence) Add(doc ConfluenceDoc) {
	c.docs = append(c.docs, doc)
}

// Len returns the number of loaded documents.
func (c *Confluence) Len() int { return len(c.docs) }

// Context returns facts from the documents sharing the most tokens with text.
// Documents with no overlap are never used.
func (c *Confluence) Context(text string) ConfluenceFacts {
	query := search.Tokenize(text)
	type scored struct {
		doc   *ConfluenceDoc
		score int
	}
	var hits []scored
	for i := range c.docs {
		n := 0
		for _, tok := range query {
			if _, ok := c.docs[i].tokens[tok]; ok {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{&c.docs[i], n})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return b.score - a.score })
	if len(hits) > maxRelevantDocs {
		hits = hits[:maxRelevantDocs]
	}

	facts := ConfluenceFacts{}
	for _, h := range hits {
		facts.Documents = append(facts.Documents, h.doc.Title)
		facts.Technologies = appendNew(facts.Technologies, h.doc.Technologies...)
		facts.BusinessRules = appendNew(facts.BusinessRules, h.doc.BusinessRules[:min(len(h.doc.BusinessRules), maxRulesPerDoc)]...)
		facts.Components = appendNew(facts.Components, h.doc.Components...)
	}
	return facts
}

// ParseConfluenceHTML extracts the visible text of an HTML export. The page
// <title>, or the first <h1>, overrides fallbackTitle.
func ParseConfluenceHTML(r io.Reader, fallbackTitle string) (ConfluenceDoc, error) {
	root, err := html.Parse(r)
	if err != nil {
		return ConfluenceDoc{}, fmt.Errorf("parsing html: %w", err)
	}

	var (
		b        strings.Builder
		title    string
		headings []string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				if n.Data == "head" {
					if t := findElement(n, "title"); t != nil {
						title = nodeText(t)
					}
				}
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				h := nodeText(n)
				headings = append(headings, h)
				if n.Data == "h1" && title == "" {
					title = h
				}
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			b.WriteString(".\n")
		}
	}
	walk(root)

	if strings.TrimSpace(title) == "" {
		title = fallbackTitle
	}
	doc := ParseConfluenceText(strings.TrimSpace(title), b.String())
	doc.Components = appendNew(doc.Components, headingComponents(headings)...)
	return doc, nil
}

// ParseConfluenceText extracts facts from plain or markdown text.
func ParseConfluenceText(title, text string) ConfluenceDoc {
	text = whitespace.ReplaceAllString(text, " ")
	doc := ConfluenceDoc{
		Title:         title,
		Technologies:  technologies(text),
		BusinessRules: businessRules(text),
		Components:    componentNames(text),
		tokens:        map[string]struct{}{},
	}
	for _, tok := range search.Tokenize(title + " " + text) {
		doc.tokens[tok] = struct{}{}
	}
	return doc
}

func findElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if f := findElement(c, tag); f != nil {
			return f
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "tr", "br", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "td", "th":
		return true
	}
	return false
}

var technologyTerms = []string{
	"React Native", "React", "TypeScript", "JavaScript", "Redux", "Expo",
	"iOS", "Android", "Swift", "Kotlin", "GraphQL", "Apollo", "REST API",
	"Node.js", "Express", "MongoDB", "PostgreSQL", "MySQL", "Redis", "Firebase",
	"AWS", "Lambda", "DynamoDB", "S3", "Cognito", "Docker", "Kubernetes",
	"Jest", "Sentry", "Mixpanel", "Segment", "Crashlytics", "Stripe",
	"OAuth", "JWT", "SSL/TLS", "2FA", "Biometric", "Face ID", "Touch ID",
	"Webhook", "SDK", "Microservices", "Serverless", "Message Queue",
	"KYC", "AML", "Compliance",
}

var technologyPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(technologyTerms))
	for i, t := range technologyTerms {
		out[i] = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])` + regexp.QuoteMeta(t) + `(?:$|[^a-z0-9])`)
	}
	return out
}()

func technologies(text string) []string {
	var out []string
	for i, re := range technologyPatterns {
		if re.MatchString(text) {
			out = append(out, technologyTerms[i])
		}
	}
	return out
}

var (
	whitespace   = regexp.MustCompile(`\s+`)
	sentenceEnd  = regexp.MustCompile(`[.!?]+`)
	ruleKeywords = regexp.MustCompile(`(?i)\b(?:must|should|cannot|only|always|never|required|mandatory)\b`)
)

func businessRules(text string) []string {
	var out []string
	for _, s := range sentenceEnd.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) < 10 || !ruleKeywords.MatchString(s) {
			continue
		}
		out = appendNew(out, s+".")
		if len(out) == maxRulesPerText {
			break
		}
	}
	return out
}

var componentPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:Screen|Component|View|Button|Input|Modal|Header|Footer|Card|List|Form|Field|Picker|Tab|Menu|Manager|Service|Handler|Controller|Provider|Store)\b`)

func componentNames(text string) []string {
	var out []string
	for _, m := range componentPattern.FindAllString(text, -1) {
		out = appendNew(out, m)
	}
	return out
}

var headingStopWords = map[string]struct{}{
	"The": {}, "And": {}, "For": {}, "With": {}, "From": {}, "This": {},
	"That": {}, "These": {}, "Those": {}, "Table": {}, "Contents": {},
}

func headingComponents(headings []string) []string {
	var out []string
	for _, h := range headings {
		for _, w := range strings.Fields(h) {
			w = strings.Trim(w, ".,:;()")
			if len(w) <= 3 || w[0] < 'A' || w[0] > 'Z' {
				continue
			}
			if _, stop := headingStopWords[w]; stop {
				continue
			}
			out = appendNew(out, w)
		}
	}
	return out
}

func appendNew(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}
