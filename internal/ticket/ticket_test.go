package ticket

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestNormalize_RejectsEmptyTicket(t *testing.T) {
	tk := Ticket{ID: "PROJ-1", Title: "   ", Description: "\n\t"}
	err := tk.Normalize(fixedNow)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Normalize() error = %v, want ErrInsufficientData", err)
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	tk := Ticket{
		Title:       "Implement push notifications",
		Description: "iOS and Android, Figma: https://www.figma.com/file/abc123/notif",
		Labels:      []string{"mobile", " mobile ", "", "push"},
		Priority:    "critical",
	}
	if err := tk.Normalize(fixedNow); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if !strings.HasPrefix(tk.ID, "MANUAL-") {
		t.Errorf("ID = %q, want MANUAL- prefix", tk.ID)
	}
	if tk.Priority != PriorityHigh {
		t.Errorf("Priority = %q, want %q", tk.Priority, PriorityHigh)
	}
	if want := []string{"mobile", "push"}; !reflect.DeepEqual(tk.Labels, want) {
		t.Errorf("Labels = %v, want %v", tk.Labels, want)
	}
	if want := []string{"https://www.figma.com/file/abc123/notif"}; !reflect.DeepEqual(tk.FigmaLinks, want) {
		t.Errorf("FigmaLinks = %v, want %v", tk.FigmaLinks, want)
	}
	if !tk.CreatedAt.Equal(fixedNow) || !tk.UpdatedAt.Equal(fixedNow) {
		t.Errorf("timestamps = %v/%v, want %v", tk.CreatedAt, tk.UpdatedAt, fixedNow)
	}
}

// TestManualID_Stable verifies the same content always maps to the same id.
func TestNormalize_DoesNotWriteCallerFigmaLinks(t *testing.T) {
	backing := make([]string, 1, 4)
	backing[0] = "https://www.figma.com/file/AAA/Home"
	spare := backing[:4]

	tk := Ticket{Title: "Home screen", Description: "See https://www.figma.com/file/BBB/Other", FigmaLinks: backing}
	if err := tk.Normalize(time.Now()); err != nil {
		t.Fatal(err)
	}
	if spare[1] != "" || spare[2] != "" {
		t.Errorf("caller backing array modified: %q", spare)
	}
	if len(tk.FigmaLinks) != 2 {
		t.Errorf("FigmaLinks = %v, want both links", tk.FigmaLinks)
	}
}

func TestManualID_Stable(t *testing.T) {
	a := ManualID("Title", "Body")
	b := ManualID("Title", "Body")
	c := ManualID("Title", "Other body")
	if a != b {
		t.Errorf("ManualID not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("ManualID collided for different content: %q", a)
	}
	if len(a) != len("MANUAL-")+12 {
		t.Errorf("ManualID length = %d, want %d", len(a), len("MANUAL-")+12)
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"PROJ-123", "PROJ-123"},
		{" PROJ-123 ", "PROJ-123"},
		{"../../etc/passwd", "etc_passwd"},
		{"a b/c", "a_b_c"},
		{"///", "ticket"},
	}
	for _, tt := range tests {
		if got := SanitizeID(tt.in); got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractFigmaLinks(t *testing.T) {
	text := `See https://www.figma.com/file/abc123/notif. Also the prototype
(https://figma.com/proto/XYZ789/flow?node-id=1) and https://www.figma.com/design/Qq1/new,
and again https://www.figma.com/file/abc123/notif. Not figma: https://example.com/file/abc`
	got := ExtractFigmaLinks(text)
	want := []string{
		"https://www.figma.com/file/abc123/notif",
		"https://figma.com/proto/XYZ789/flow?node-id=1",
		"https://www.figma.com/design/Qq1/new",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractFigmaLinks() = %v, want %v", got, want)
	}
}

func TestExtractFigmaLinks_None(t *testing.T) {
	got := ExtractFigmaLinks("no links here", "")
	if got == nil || len(got) != 0 {
		t.Errorf("ExtractFigmaLinks() = %#v, want empty non-nil slice", got)
	}
}

func TestFigmaFileKey(t *testing.T) {
	if got := FigmaFileKey("https://www.figma.com/design/Qq1abc/new?x=1"); got != "Qq1abc" {
		t.Errorf("FigmaFileKey() = %q, want %q", got, "Qq1abc")
	}
	if got := FigmaFileKey("https://example.com"); got != "" {
		t.Errorf("FigmaFileKey() = %q, want empty", got)
	}
}

func TestParseJSON_Flat(t *testing.T) {
	tk, err := ParseJSON([]byte(`{"key":"PROJ-9","summary":"Payment page","description":"Pay","priority":"Low","labels":["billing"]}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if tk.ID != "PROJ-9" || tk.Title != "Payment page" {
		t.Errorf("ID/Title = %q/%q, want PROJ-9/Payment page", tk.ID, tk.Title)
	}
	if tk.Priority != "Low" {
		t.Errorf("Priority = %q, want Low", tk.Priority)
	}
}

func TestParseJSON_JiraIssue(t *testing.T) {
	raw := `{
	  "key": "PROJ-42",
	  "fields": {
	    "summary": "Dashboard widgets",
	    "description": "<p>Show <b>metrics</b> &amp; charts. <a href=\"https://www.figma.com/file/K1/dash\">design</a></p>",
	    "priority": {"name": "Highest"},
	    "assignee": {"displayName": "Dana"},
	    "reporter": {"displayName": "Sam"},
	    "labels": ["analytics"],
	    "components": [{"name": "web"}, {"name": "api"}],
	    "comment": {"comments": [{"body": "LGTM"}]},
	    "created": "2024-03-01T10:15:30.000+0000"
	  }
	}`
	tk, err := ParseJSON([]byte(raw))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if tk.ID != "PROJ-42" {
		t.Errorf("ID = %q, want PROJ-42", tk.ID)
	}
	if tk.Description != "Show metrics & charts. design" {
		t.Errorf("Description = %q", tk.Description)
	}
	if want := []string{"https://www.figma.com/file/K1/dash"}; !reflect.DeepEqual(tk.FigmaLinks, want) {
		t.Errorf("FigmaLinks = %v, want %v", tk.FigmaLinks, want)
	}
	if want := []string{"web", "api"}; !reflect.DeepEqual(tk.Components, want) {
		t.Errorf("Components = %v, want %v", tk.Components, want)
	}
	if tk.Assignee != "Dana" || tk.Reporter != "Sam" {
		t.Errorf("Assignee/Reporter = %q/%q", tk.Assignee, tk.Reporter)
	}
	if tk.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}

	if err := tk.Normalize(fixedNow); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tk.Priority != PriorityHigh {
		t.Errorf("Priority = %q, want High", tk.Priority)
	}
	if len(tk.FigmaLinks) != 1 {
		t.Errorf("FigmaLinks after Normalize = %v, want 1 link", tk.FigmaLinks)
	}
}

func TestParseJSON_Malformed(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"title":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
