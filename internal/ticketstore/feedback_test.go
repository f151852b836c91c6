package ticketstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
)

func TestSubmitFeedback(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	id := storeTicket(t, e, ticket.Ticket{ID: "FB-1", Title: "Mobile checkout", Description: "Pay from the app"})

	entries := []FeedbackEntry{
		{Section: " Questions ", Rating: 2, Comment: "Too generic.", UnhelpfulItems: []string{"Who owns it?", " ", "Who owns it?"}},
		{Section: "overall", Rating: 4},
	}
	rows, err := e.SubmitFeedback(ctx, id, "qa-1", entries)
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if entries[0].Section != " Questions " {
		t.Error("SubmitFeedback modified the caller's entries")
	}
	if len(rows) != 2 || rows[0].Section != "questions" || rows[0].TicketTitle != "Mobile checkout" {
		t.Fatalf("rows = %+v", rows)
	}
	if !reflect.DeepEqual(rows[0].UnhelpfulItems, []string{"Who owns it?"}) {
		t.Errorf("UnhelpfulItems = %q", rows[0].UnhelpfulItems)
	}
	if len(rows[0].DetectedTopics) == 0 {
		t.Error("DetectedTopics empty, want the ticket categories")
	}

	got, err := e.TicketFeedback(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].CreatedAt.Equal(fixedNow) || got[0].UserID != "qa-1" {
		t.Errorf("TicketFeedback = %+v", got)
	}

	// Feedback outlives the ticket.
	if err := e.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.TicketFeedback(ctx, id); len(got) != 2 {
		t.Errorf("feedback after delete = %d rows, want 2", len(got))
	}
}

func TestSubmitFeedback_Rejects(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	id := storeTicket(t, e, ticket.Ticket{ID: "FB-2", Title: "Profile page"})

	tests := []struct {
		name    string
		entries []FeedbackEntry
	}{
		{"empty", nil},
		{"rating zero", []FeedbackEntry{{Section: "overall", Rating: 0}}},
		{"rating six", []FeedbackEntry{{Section: "overall", Rating: 6}}},
		{"unknown section", []FeedbackEntry{{Section: "vibes", Rating: 3}}},
		{"duplicate section", []FeedbackEntry{{Section: "risks", Rating: 3}, {Section: "RISKS", Rating: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.SubmitFeedback(ctx, id, "", tt.entries); !errors.Is(err, ErrInvalidFeedback) {
				t.Errorf("err = %v, want ErrInvalidFeedback", err)
			}
		})
	}

	_, err := e.SubmitFeedback(ctx, "NOPE-1", "", []FeedbackEntry{{Section: "overall", Rating: 3}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ticket err = %v, want ErrNotFound", err)
	}
	if got, _ := e.TicketFeedback(ctx, id); len(got) != 0 {
		t.Errorf("rejected feedback stored %d rows", len(got))
	}
}

func TestFeedbackSummary(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	a := storeTicket(t, e, ticket.Ticket{ID: "FB-3", Title: "Push notifications", Description: "Remind users"})
	b := storeTicket(t, e, ticket.Ticket{ID: "FB-4", Title: "Search filters", Description: "Filter by date"})

	submit := func(id string, entries ...FeedbackEntry) {
		t.Helper()
		if _, err := e.SubmitFeedback(ctx, id, "", entries); err != nil {
			t.Fatalf("SubmitFeedback: %v", err)
		}
	}
	submit(a,
		FeedbackEntry{Section: "questions", Rating: 1, Comment: "Questions were too generic. You should add offline cases.", MissingTopics: []string{"offline mode"}},
		FeedbackEntry{Section: "overall", Rating: 3},
	)
	submit(b, FeedbackEntry{Section: "test_cases", Rating: 5, Comment: "Very detailed and helpful."})

	sum, err := e.FeedbackSummary(ctx, "", 30)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 3 || sum.AverageRating != 3 {
		t.Errorf("totals = %d / %v, want 3 / 3", sum.Total, sum.AverageRating)
	}
	if sum.RatingDistribution[1] != 1 || sum.RatingDistribution[5] != 1 || sum.RatingDistribution[2] != 0 {
		t.Errorf("distribution = %v", sum.RatingDistribution)
	}
	if !reflect.DeepEqual(sum.CommonComplaints, []string{"Questions were too generic"}) {
		t.Errorf("complaints = %q", sum.CommonComplaints)
	}
	if !reflect.DeepEqual(sum.CommonPraises, []string{"Very detailed and helpful"}) {
		t.Errorf("praises = %q", sum.CommonPraises)
	}
	if !reflect.DeepEqual(sum.ImprovementSuggestions, []string{"You should add offline cases"}) {
		t.Errorf("suggestions = %q", sum.ImprovementSuggestions)
	}
	if !reflect.DeepEqual(sum.MissingTopics, []string{"offline mode"}) {
		t.Errorf("missing topics = %q", sum.MissingTopics)
	}
	if len(sum.LowRated) != 2 {
		t.Errorf("LowRated = %+v, want the ratings of 1 and 3", sum.LowRated)
	}
	if len(sum.ByTopic) == 0 {
		t.Error("ByTopic empty")
	}

	only, err := e.FeedbackSummary(ctx, "test_cases", 0)
	if err != nil {
		t.Fatal(err)
	}
	if only.Total != 1 || only.AverageRating != 5 || len(only.BySection) != 1 {
		t.Errorf("section summary = %+v", only.FeedbackStats)
	}

	if _, err := e.FeedbackSummary(ctx, "vibes", 0); !errors.Is(err, ErrInvalidFeedback) {
		t.Errorf("unknown section err = %v", err)
	}
}

func TestExportFeedback(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t, t.TempDir())
	id := storeTicket(t, e, ticket.Ticket{ID: "FB-5", Title: "Dark mode"})
	if _, err := e.SubmitFeedback(ctx, id, "", []FeedbackEntry{{Section: "risks", Rating: 2, HelpfulItems: []string{"a", "b"}}}); err != nil {
		t.Fatal(err)
	}

	path, err := e.ExportFeedback(ctx, ExportJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(path, e.Layout().ExportsDir) || !strings.Contains(path, "feedback_export_20260402_153000.json") {
		t.Errorf("json path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []storage.Feedback
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if len(rows) != 1 || rows[0].TicketID != "FB-5" || rows[0].Rating != 2 {
		t.Errorf("exported = %+v", rows)
	}

	path, err = e.ExportFeedback(ctx, ExportCSV)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || !reflect.DeepEqual(records[0], feedbackCSVHeader) {
		t.Fatalf("csv = %q", records)
	}
	if records[1][2] != "risks" || records[1][6] != "a; b" {
		t.Errorf("csv row = %q", records[1])
	}
}
