package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
)

// GeneratedPrefix starts the only line of a report that depends on when the
// analysis ran.
const GeneratedPrefix = "Generated: "

var questionHeadings = map[analysis.QuestionCategory]string{
	analysis.QuestionGeneral:  "General Questions",
	analysis.QuestionDesign:   "Design Questions",
	analysis.QuestionBusiness: "Business Questions",
}

var testHeadings = map[analysis.TestCategory]string{
	analysis.TestFunctional:    "Core Functionality",
	analysis.TestErrorHandling: "Error Handling",
	analysis.TestPerformance:   "Performance",
	analysis.TestAccessibility: "Accessibility",
	analysis.TestMobile:        "Mobile/Cross-Platform",
	analysis.TestSecurity:      "Security/Compliance",
	analysis.TestUIUX:          "UI/UX",
	analysis.TestIntegration:   "Integration",
	analysis.TestDataIntegrity: "Data Integrity",
}

// Markdown renders the fixed-order Markdown report.
func (r *Renderer) Markdown(doc Document) string {
	t, res := doc.Ticket, doc.Result
	var b strings.Builder

	b.WriteString("# Ticket Analysis Report\n\n")

	b.WriteString("## Ticket Information\n\n")
	field(&b, "ID", t.ID)
	field(&b, "Title", t.Title)
	field(&b, "Priority", string(t.Priority))
	field(&b, "Assignee", t.Assignee)
	field(&b, "Reporter", t.Reporter)
	field(&b, "Labels", strings.Join(t.Labels, ", "))
	field(&b, "Components", strings.Join(t.Components, ", "))
	cats := make([]string, len(res.Categories))
	for i, c := range res.Categories {
		cats[i] = string(c)
	}
	field(&b, "Categories", strings.Join(cats, ", "))
	field(&b, "Figma Links", fmt.Sprintf("%d", len(t.FigmaLinks)))
	b.WriteString("\n")

	b.WriteString("## Figma Links\n\n")
	r.links(&b, t.FigmaLinks)

	b.WriteString("## Questions\n\n")
	for _, c := range analysis.QuestionCategories {
		fmt.Fprintf(&b, "### %s\n\n", questionHeadings[c])
		r.numbered(&b, res.Questions[c], "None.")
	}

	b.WriteString("## Areas Needing Clarification\n\n")
	r.bullets(&b, res.ClarificationsNeeded, "None.")

	b.WriteString("## Technical Considerations\n\n")
	r.bullets(&b, res.TechnicalConsiderations, "None.")

	b.WriteString("## Risk Areas\n\n")
	r.bullets(&b, res.RiskAreas, "None.")

	b.WriteString("## Test Cases\n\n")
	for _, c := range analysis.TestCategories {
		fmt.Fprintf(&b, "### %s\n\n", testHeadings[c])
		r.bullets(&b, res.TestCases[c], "None.")
	}

	b.WriteString("## Analysis Summary\n\n")
	fmt.Fprintf(&b, "- Total questions: %d\n", res.QuestionCount())
	fmt.Fprintf(&b, "- Clarifications needed: %d\n", len(res.ClarificationsNeeded))
	fmt.Fprintf(&b, "- Technical considerations: %d\n", len(res.TechnicalConsiderations))
	fmt.Fprintf(&b, "- Risk areas: %d\n", len(res.RiskAreas))
	fmt.Fprintf(&b, "- Test cases: %d\n", res.TestCaseCount())
	if v := res.Metadata.AnalyzerVersion; v != "" {
		fmt.Fprintf(&b, "- Analyzer version: %s\n", v)
	}
	if res.Metadata.Enhanced {
		b.WriteString("- Enhanced with language model suggestions\n")
	}
	b.WriteString("\n")

	b.WriteString(GeneratedPrefix + formatGenerated(res.Metadata.GeneratedAt) + "\n")
	return b.String()
}

func formatGenerated(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func field(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, escapeMarkdown(value))
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
	`>`, `\>`,
	`#`, `\#`,
	`|`, `\|`,
	`~`, `\~`,
	`&`, `\&`,
)

// escapeMarkdown makes ticket text render literally inside a list item.
func escapeMarkdown(s string) string {
	s = markdownEscaper.Replace(s)
	if s == "" {
		return s
	}
	switch s[0] {
	case '-', '+', '=':
		return `\` + s
	}
	// "2024. Roadmap" would open an ordered list.
	digits := len(s) - len(strings.TrimLeft(s, "0123456789"))
	if digits > 0 && digits < len(s) && (s[digits] == '.' || s[digits] == ')') {
		return s[:digits] + `\` + s[digits:]
	}
	return s
}

// visible applies the display cap and reports how many items were hidden.
func (r *Renderer) visible(items []string) ([]string, int) {
	max := r.opts.MaxItemsPerSection
	if max <= 0 || len(items) <= max {
		return items, 0
	}
	return items[:max], len(items) - max
}

// links lists URLs unescaped so they stay clickable.
func (r *Renderer) links(b *strings.Builder, urls []string) {
	if len(urls) == 0 {
		b.WriteString("_No Figma links found._\n\n")
		return
	}
	shown, hidden := r.visible(urls)
	for i, u := range shown {
		fmt.Fprintf(b, "%d. %s\n", i+1, u)
	}
	if hidden > 0 {
		fmt.Fprintf(b, "\n_... and %d more_\n", hidden)
	}
	b.WriteString("\n")
}

func (r *Renderer) numbered(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "_%s_\n\n", empty)
		return
	}
	shown, hidden := r.visible(items)
	for i, s := range shown {
		fmt.Fprintf(b, "%d. %s\n", i+1, escapeMarkdown(s))
	}
	if hidden > 0 {
		fmt.Fprintf(b, "\n_... and %d more_\n", hidden)
	}
	b.WriteString("\n")
}

func (r *Renderer) bullets(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "_%s_\n\n", empty)
		return
	}
	shown, hidden := r.visible(items)
	for _, s := range shown {
		fmt.Fprintf(b, "- %s\n", escapeMarkdown(s))
	}
	if hidden > 0 {
		fmt.Fprintf(b, "\n_... and %d more_\n", hidden)
	}
	b.WriteString("\n")
}
