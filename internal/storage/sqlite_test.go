package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/classify"
	"github.com/kalambet/ticketlens/internal/ticket"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var day = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

func testRecord(id, title string, created time.Time) TicketRecord {
	return TicketRecord{
		Ticket: ticket.Ticket{
			ID:          id,
			Title:       title,
			Description: "Users should be able to " + title,
			Priority:    ticket.PriorityHigh,
			Labels:      []string{"mobile", "ux"},
			Components:  []string{"app"},
			FigmaLinks:  []string{"https://www.figma.com/file/abc/x"},
			CreatedAt:   created,
			UpdatedAt:   created,
		},
		Result: analysis.Result{
			Questions: map[analysis.QuestionCategory][]string{
				analysis.QuestionGeneral:  {"What are the acceptance criteria?", "Who owns it?"},
				analysis.QuestionDesign:   {"Which states exist?"},
				analysis.QuestionBusiness: {},
			},
			TestCases: map[analysis.TestCategory][]string{
				analysis.TestFunctional: {"Verify the happy path"},
				analysis.TestMobile:     {"Test on small screens"},
			},
			RiskAreas:               []string{"No design reference provided"},
			TechnicalConsiderations: []string{"Caching strategy"},
			ClarificationsNeeded:    []string{"Performance requirements are not specified."},
			Categories:              []classify.Category{classify.Mobile},
			Metadata: analysis.Metadata{
				RunID:           "run-1",
				GeneratedAt:     created,
				Duration:        1500 * time.Millisecond,
				AnalyzerVersion: analysis.Version,
			},
		},
		StoredAt: created,
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, table := range append([]string{"tickets", "jobs", "feedback"}, childTables...) {
		var count int
		if err := s.db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table); err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %q not found", table)
		}
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := testRecord("PROJ-1", "book a table", day)

	if err := s.SaveTicket(ctx, want); err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}
	got, err := s.GetRecord(ctx, "PROJ-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}

	if got.Ticket.Title != want.Ticket.Title || got.Ticket.Priority != ticket.PriorityHigh {
		t.Errorf("ticket = %+v", got.Ticket)
	}
	if !got.Ticket.CreatedAt.Equal(day) {
		t.Errorf("CreatedAt = %v, want %v", got.Ticket.CreatedAt, day)
	}
	if !reflect.DeepEqual(got.Ticket.Labels, want.Ticket.Labels) {
		t.Errorf("Labels = %v", got.Ticket.Labels)
	}
	if !reflect.DeepEqual(got.Result.Questions[analysis.QuestionGeneral], want.Result.Questions[analysis.QuestionGeneral]) {
		t.Errorf("general questions = %v", got.Result.Questions[analysis.QuestionGeneral])
	}
	if got.Result.Questions[analysis.QuestionBusiness] == nil {
		t.Error("empty category should be a non-nil list")
	}
	if !reflect.DeepEqual(got.Result.TestCases[analysis.TestMobile], want.Result.TestCases[analysis.TestMobile]) {
		t.Errorf("mobile tests = %v", got.Result.TestCases[analysis.TestMobile])
	}
	if !reflect.DeepEqual(got.Result.RiskAreas, want.Result.RiskAreas) {
		t.Errorf("risks = %v", got.Result.RiskAreas)
	}
	if !reflect.DeepEqual(got.Result.Categories, want.Result.Categories) {
		t.Errorf("categories = %v", got.Result.Categories)
	}
	if got.Result.Metadata.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", got.Result.Metadata.Duration)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRecord(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveTicket_ReplacesChildRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testRecord("PROJ-123", "first version", day)
	if err := s.SaveTicket(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := testRecord("PROJ-123", "second version", day)
	second.Result.Questions[analysis.QuestionGeneral] = []string{"Only question"}
	second.Result.Questions[analysis.QuestionDesign] = nil
	if err := s.SaveTicket(ctx, second); err != nil {
		t.Fatal(err)
	}

	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalTickets != 1 {
		t.Errorf("TotalTickets = %d, want 1", st.TotalTickets)
	}
	if st.TotalQuestions != 1 {
		t.Errorf("TotalQuestions = %d, want 1", st.TotalQuestions)
	}

	got, err := s.GetRecord(ctx, "PROJ-123")
	if err != nil {
		t.Fatal(err)
	}
	if got.Ticket.Title != "second version" {
		t.Errorf("title = %q", got.Ticket.Title)
	}
}

func TestListAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"A", "B", "C"} {
		if err := s.SaveTicket(ctx, testRecord(id, "ticket "+id, day.AddDate(0, 0, i))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListTickets(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "C" || all[2].ID != "A" {
		t.Errorf("ListTickets order = %+v", all)
	}
	if all[0].QuestionCount != 3 || all[0].TestCaseCount != 2 || all[0].RiskCount != 1 || all[0].FigmaLinkCount != 1 {
		t.Errorf("summary counts = %+v", all[0])
	}

	page, err := s.ListTickets(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != "B" {
		t.Errorf("page = %+v", page)
	}

	recent, err := s.RecentTickets(ctx, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("recent = %+v", recent)
	}

	sums, err := s.Summaries(ctx, []string{"A", "missing", "C"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 || sums[0].ID != "A" || sums[1].ID != "C" {
		t.Errorf("Summaries = %+v", sums)
	}
}

func TestDeleteTicket(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SaveTicket(ctx, testRecord("A", "a", day)); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteTicket(ctx, "A"); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	if err := s.DeleteTicket(ctx, "A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	var orphans int
	if err := s.db.Get(&orphans, "SELECT COUNT(*) FROM questions"); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("%d orphan question rows", orphans)
	}
}

func TestDeleteAllTickets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		if err := s.SaveTicket(ctx, testRecord(id, id, day)); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.DeleteAllTickets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalTickets != 0 || st.TotalTestCases != 0 {
		t.Errorf("stats after purge = %+v", st)
	}
}

func TestStatistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalTickets != 0 || st.AvgQuestionsPerTicket != 0 {
		t.Errorf("empty stats = %+v", st)
	}

	low := testRecord("B", "b", day)
	low.Ticket.Priority = ticket.PriorityLow
	for _, rec := range []TicketRecord{testRecord("A", "a", day), low} {
		if err := s.SaveTicket(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	st, err = s.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalTickets != 2 || st.TotalQuestions != 6 || st.TotalTestCases != 4 || st.TotalRisks != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.AvgQuestionsPerTicket != 3 || st.AvgTestCasesPerTicket != 2 {
		t.Errorf("averages = %v %v", st.AvgQuestionsPerTicket, st.AvgTestCasesPerTicket)
	}
	if st.PriorityDistribution["High"] != 1 || st.PriorityDistribution["Low"] != 1 {
		t.Errorf("priority distribution = %v", st.PriorityDistribution)
	}
	if st.CategoryBreakdown["mobile"] != 2 || st.LabelBreakdown["ux"] != 2 {
		t.Errorf("breakdowns = %v %v", st.CategoryBreakdown, st.LabelBreakdown)
	}
}

func TestTimeline(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recs := []TicketRecord{
		testRecord("A", "a", day),
		testRecord("B", "b", day.Add(2*time.Hour)),
		testRecord("C", "c", day.AddDate(0, 0, 1)),
	}
	for _, rec := range recs {
		if err := s.SaveTicket(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Timeline(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	want := []DayCount{{Date: "2026-02-03", Count: 2}, {Date: "2026-02-04", Count: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Timeline = %+v, want %+v", got, want)
	}

	got, err = s.Timeline(ctx, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("bounded timeline = %+v", got)
	}
}

func TestIndexDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SaveTicket(ctx, testRecord("A", "reserve seats", day)); err != nil {
		t.Fatal(err)
	}

	docs, err := s.IndexDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs", len(docs))
	}
	d := docs[0]
	if d.ID != "A" || d.Title != "reserve seats" || !d.CreatedAt.Equal(day) || !d.StoredAt.Equal(day) {
		t.Errorf("doc = %+v", d)
	}
	if len(d.Labels) != 2 || len(d.Questions) != 3 {
		t.Errorf("labels %v questions %v", d.Labels, d.Questions)
	}
}

func TestStoredStamps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("A", "reserve seats", day)
	rec.StoredAt = day.Add(time.Hour)
	if err := s.SaveTicket(ctx, rec); err != nil {
		t.Fatal(err)
	}

	stamps, err := s.StoredStamps(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stamps) != 1 || !stamps["A"].Equal(day.Add(time.Hour)) {
		t.Errorf("stamps = %v", stamps)
	}
}
