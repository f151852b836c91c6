package enhance

import (
	"fmt"
	"strings"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/ticket"
)

const systemPrompt = `You are a senior QA analyst reviewing a product ticket before development starts. Suggest clarification questions that the existing list does not already cover. Your output must be ONLY a single valid JSON object of the form:

{"general": ["..."], "design": ["..."], "business": ["..."]}

Rules:
- At most %d questions per category.
- Each question is one sentence ending with a question mark.
- Do not repeat or rephrase the existing questions.
- Do not include any other text, prose, or markdown.`

// BuildPrompt returns the system and user messages for one ticket.
func BuildPrompt(t ticket.Ticket, r analysis.Result, perCategory int) (system, user string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Ticket %s]\nTitle: %s\n", t.ID, t.Title)
	if t.Priority != "" {
		fmt.Fprintf(&sb, "Priority: %s\n", t.Priority)
	}
	if len(t.Labels) > 0 {
		fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(t.Labels, ", "))
	}
	if len(t.Components) > 0 {
		fmt.Fprintf(&sb, "Components: %s\n", strings.Join(t.Components, ", "))
	}
	if t.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", t.Description)
	}

	if len(r.Categories) > 0 {
		cats := make([]string, len(r.Categories))
		for i, c := range r.Categories {
			cats[i] = string(c)
		}
		fmt.Fprintf(&sb, "\n[Detected areas]\n%s\n", strings.Join(cats, ", "))
	}

	sb.WriteString("\n[Existing questions]\n")
	for _, c := range analysis.QuestionCategories {
		for _, q := range r.Questions[c] {
			fmt.Fprintf(&sb, "- (%s) %s\n", c, q)
		}
	}
	return fmt.Sprintf(systemPrompt, perCategory), sb.String()
}
