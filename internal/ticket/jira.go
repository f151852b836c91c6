package ticket

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// JiraIssue mirrors the subset of the Jira REST issue payload that is needed
// to build a Ticket.
type JiraIssue struct {
	Key    string     `json:"key"`
	Fields JiraFields `json:"fields"`
}

type JiraFields struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Priority    *JiraNamed    `json:"priority"`
	Assignee    *JiraUser     `json:"assignee"`
	Reporter    *JiraUser     `json:"reporter"`
	Labels      []string      `json:"labels"`
	Components  []JiraNamed   `json:"components"`
	Comment     *JiraComments `json:"comment"`
	Created     string        `json:"created"`
	Updated     string        `json:"updated"`
	Status      *JiraNamed    `json:"status"`
	IssueType   *JiraNamed    `json:"issuetype"`
}

type JiraNamed struct {
	Name string `json:"name"`
}

type JiraUser struct {
	DisplayName string `json:"displayName"`
}

type JiraComments struct {
	Comments []struct {
		Body string `json:"body"`
	} `json:"comments"`
}

// Jira renders timestamps like 2024-03-01T10:15:30.000+0000.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

var stripHTML = bluemonday.StrictPolicy()

// Ticket converts the issue into a Ticket. HTML in the description and
// comments (rendered-field exports) is reduced to text.
func (j JiraIssue) Ticket() Ticket {
	f := j.Fields
	t := Ticket{
		ID:          j.Key,
		Title:       f.Summary,
		Description: plainText(f.Description),
		Labels:      f.Labels,
		CreatedAt:   parseJiraTime(f.Created),
		UpdatedAt:   parseJiraTime(f.Updated),
	}
	if f.Priority != nil {
		t.Priority = Priority(f.Priority.Name)
	}
	if f.Assignee != nil {
		t.Assignee = f.Assignee.DisplayName
	}
	if f.Reporter != nil {
		t.Reporter = f.Reporter.DisplayName
	}
	for _, c := range f.Components {
		t.Components = append(t.Components, c.Name)
	}
	raw := []string{f.Description}
	if f.Comment != nil {
		for _, c := range f.Comment.Comments {
			raw = append(raw, c.Body)
			if body := plainText(c.Body); body != "" {
				t.Comments = append(t.Comments, body)
			}
		}
	}
	// Links inside anchor attributes do not survive HTML stripping.
	t.FigmaLinks = ExtractFigmaLinks(raw...)
	return t
}

func plainText(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	return html.UnescapeString(stripHTML.Sanitize(s))
}

func parseJiraTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{jiraTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
