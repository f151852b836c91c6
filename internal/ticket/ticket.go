package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrInsufficientData is returned when a ticket has neither a title nor a
// description and therefore cannot be analyzed.
var ErrInsufficientData = errors.New("insufficient ticket data")

// Priority is the normalized ticket priority.
type Priority string

const (
	PriorityHigh    Priority = "High"
	PriorityMedium  Priority = "Medium"
	PriorityLow     Priority = "Low"
	PriorityUnknown Priority = "Unknown"
)

// ParsePriority maps free-form Jira priority names onto the four known values.
// Blocker/Critical/Highest collapse into High, Lowest into Low.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "highest", "critical", "blocker", "urgent":
		return PriorityHigh
	case "medium", "normal", "major":
		return PriorityMedium
	case "low", "lowest", "minor", "trivial":
		return PriorityLow
	default:
		return PriorityUnknown
	}
}

// Ticket is a unit of requested work.
type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Assignee    string    `json:"assignee,omitempty"`
	Reporter    string    `json:"reporter,omitempty"`
	Labels      []string  `json:"labels"`
	Components  []string  `json:"components"`
	Comments    []string  `json:"comments,omitempty"`
	FigmaLinks  []string  `json:"figma_links"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Normalize trims fields, collapses labels and components into ordered sets,
// fills the priority and timestamps, extracts Figma links, and assigns an id
// when the ticket has no key. It returns ErrInsufficientData when the ticket
// has no usable text.
func (t *Ticket) Normalize(now time.Time) error {
	t.ID = strings.TrimSpace(t.ID)
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	if t.Title == "" && t.Description == "" {
		return ErrInsufficientData
	}

	t.Priority = ParsePriority(string(t.Priority))
	t.Assignee = strings.TrimSpace(t.Assignee)
	t.Reporter = strings.TrimSpace(t.Reporter)
	t.Labels = orderedSet(t.Labels)
	t.Components = orderedSet(t.Components)

	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	t.CreatedAt = t.CreatedAt.UTC().Truncate(time.Second)
	t.UpdatedAt = t.UpdatedAt.UTC().Truncate(time.Second)

	sources := slices.Concat(t.FigmaLinks, []string{t.Description, strings.Join(t.Comments, "\n")})
	t.FigmaLinks = ExtractFigmaLinks(sources...)

	if t.ID == "" {
		t.ID = ManualID(t.Title, t.Description)
	} else {
		t.ID = SanitizeID(t.ID)
	}
	return nil
}

// Text returns the lowercased title, description, and labels joined by spaces.
func (t Ticket) Text() string {
	parts := make([]string, 0, 2+len(t.Labels))
	parts = append(parts, t.Title, t.Description)
	parts = append(parts, t.Labels...)
	return strings.ToLower(strings.Join(parts, " "))
}

// ParseJSON decodes a ticket document. Both the flat ticket shape and the Jira
// REST issue shape ({"key": ..., "fields": {...}}) are accepted.
func ParseJSON(data []byte) (Ticket, error) {
	var shape struct {
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return Ticket{}, fmt.Errorf("decoding ticket: %w", err)
	}
	if len(shape.Fields) > 0 && string(shape.Fields) != "null" {
		var issue JiraIssue
		if err := json.Unmarshal(data, &issue); err != nil {
			return Ticket{}, fmt.Errorf("decoding jira issue: %w", err)
		}
		return issue.Ticket(), nil
	}

	var in flatTicket
	if err := json.Unmarshal(data, &in); err != nil {
		return Ticket{}, fmt.Errorf("decoding ticket: %w", err)
	}
	return in.ticket(), nil
}

// flatTicket is the loose input shape accepted from files, the API, and MCP.
// "key"/"summary" are accepted as aliases of "id"/"title".
type flatTicket struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Assignee    string    `json:"assignee"`
	Reporter    string    `json:"reporter"`
	Labels      []string  `json:"labels"`
	Components  []string  `json:"components"`
	Comments    []string  `json:"comments"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (f flatTicket) ticket() Ticket {
	t := Ticket{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Priority:    Priority(f.Priority),
		Assignee:    f.Assignee,
		Reporter:    f.Reporter,
		Labels:      f.Labels,
		Components:  f.Components,
		Comments:    f.Comments,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if t.ID == "" {
		t.ID = f.Key
	}
	if t.Title == "" {
		t.Title = f.Summary
	}
	return t
}

func orderedSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
