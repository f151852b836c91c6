package analysis

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/ticketlens/internal/classify"
	"github.com/kalambet/ticketlens/internal/templates"
	"github.com/kalambet/ticketlens/internal/ticket"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	g, err := NewGenerator(templates.Default(), opts...)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func normalized(t *testing.T, tk ticket.Ticket) ticket.Ticket {
	t.Helper()
	if err := tk.Normalize(fixedNow); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return tk
}

// mockEnhancer implements Enhancer for testing.
type mockEnhancer struct {
	fn func(ctx context.Context, t ticket.Ticket, r Result) map[QuestionCategory][]string
}

func (m *mockEnhancer) Enhance(ctx context.Context, t ticket.Ticket, r Result) map[QuestionCategory][]string {
	return m.fn(ctx, t, r)
}

// TestGenerate_NonEmptyEverywhere checks every question and test-case category
// gets output even for a minimal ticket.
func TestGenerate_NonEmptyEverywhere(t *testing.T) {
	g := newTestGenerator(t)
	tickets := []ticket.Ticket{
		{Title: "x"},
		{Description: "only a description"},
		{ID: "PROJ-1", Title: "Payment dashboard for mobile", Description: "Users pay and see charts", Priority: "Low"},
	}
	for _, tk := range tickets {
		tk = normalized(t, tk)
		r, err := g.Analyze(context.Background(), tk, nil)
		if err != nil {
			t.Fatalf("Analyze(%q): %v", tk.Title, err)
		}
		for _, c := range QuestionCategories {
			if len(r.Questions[c]) == 0 {
				t.Errorf("ticket %q: questions[%s] empty", tk.Title, c)
			}
		}
		for _, c := range TestCategories {
			if len(r.TestCases[c]) == 0 {
				t.Errorf("ticket %q: test_cases[%s] empty", tk.Title, c)
			}
		}
	}
}

func TestGenerate_InsufficientData(t *testing.T) {
	g := newTestGenerator(t)
	_, err := g.Analyze(context.Background(), ticket.Ticket{ID: "PROJ-1"}, nil)
	if !errors.Is(err, ticket.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

// TestGenerate_NoDuplicatesWithinCategory verifies the dedup invariant for a
// ticket that triggers overlapping bundles.
func TestGenerate_NoDuplicatesWithinCategory(t *testing.T) {
	g := newTestGenerator(t)
	tk := normalized(t, ticket.Ticket{
		ID:          "PROJ-7",
		Title:       "Mobile booking with payment and push notifications",
		Description: "Responsive iOS app: schedule a session, pay by card, get an email and push alert. Search advisors. Chat support. Dashboard metrics.",
		Labels:      []string{"mobile", "payment"},
	})
	r, err := g.Analyze(context.Background(), tk, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	check := func(name string, list []string) {
		seen := map[string]bool{}
		for _, s := range list {
			if s == "" {
				t.Errorf("%s contains empty string", name)
			}
			if seen[s] {
				t.Errorf("%s contains duplicate %q", name, s)
			}
			seen[s] = true
		}
	}
	for c, qs := range r.Questions {
		check("questions."+string(c), qs)
	}
	for c, tc := range r.TestCases {
		check("test_cases."+string(c), tc)
	}
	check("risk_areas", r.RiskAreas)
	check("technical_considerations", r.TechnicalConsiderations)
	check("clarifications_needed", r.ClarificationsNeeded)
}

// TestGenerate_PushNotificationScenario covers a ticket with a Figma link.
func TestGenerate_PushNotificationScenario(t *testing.T) {
	g := newTestGenerator(t)
	tk := normalized(t, ticket.Ticket{
		Title:       "Implement push notifications",
		Description: "iOS and Android, Figma: https://www.figma.com/file/abc123/notif",
	})
	if want := []string{"https://www.figma.com/file/abc123/notif"}; !reflect.DeepEqual(tk.FigmaLinks, want) {
		t.Fatalf("FigmaLinks = %v, want %v", tk.FigmaLinks, want)
	}

	r, err := g.Analyze(context.Background(), tk, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(r.Questions[QuestionGeneral]) == 0 {
		t.Error("general questions empty")
	}
	for _, risk := range r.RiskAreas {
		if strings.Contains(risk, "No design reference") {
			t.Errorf("unexpected risk %q with a Figma link present", risk)
		}
	}
	if !slices.Contains(r.Categories, classify.Notification) || !slices.Contains(r.Categories, classify.Mobile) {
		t.Errorf("Categories = %v, want mobile and notification", r.Categories)
	}
}

// TestGenerate_EmptyDescriptionScenario covers a title-only ticket.
func TestGenerate_EmptyDescriptionScenario(t *testing.T) {
	g := newTestGenerator(t)
	tk := normalized(t, ticket.Ticket{Title: "Tidy up"})

	cats := classify.Classify(tk)
	if !reflect.DeepEqual(cats, []classify.Category{classify.Generic}) {
		t.Fatalf("Classify() = %v, want [generic]", cats)
	}

	r, err := g.Generate(context.Background(), tk, cats, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{RiskNoDesign, RiskNoUserFlow} {
		if !slices.Contains(r.RiskAreas, want) {
			t.Errorf("RiskAreas = %v, missing %q", r.RiskAreas, want)
		}
	}
	if !slices.Contains(r.ClarificationsNeeded, ClarifyBriefDescription) {
		t.Errorf("ClarificationsNeeded = %v, missing brief description note", r.ClarificationsNeeded)
	}
}

func TestGenerate_PriorityRisk(t *testing.T) {
	g := newTestGenerator(t)
	tests := []struct {
		name     string
		tk       ticket.Ticket
		wantRisk bool
	}{
		{"high without performance", ticket.Ticket{Title: "Export", Priority: "High"}, true},
		{"unknown without performance", ticket.Ticket{Title: "Export"}, true},
		{"low without performance", ticket.Ticket{Title: "Export", Priority: "Low"}, false},
		{"high with performance", ticket.Ticket{Title: "Export", Description: "Must meet performance targets", Priority: "High"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := g.Analyze(context.Background(), normalized(t, tt.tk), nil)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if got := slices.Contains(r.RiskAreas, RiskPriorityPerformance); got != tt.wantRisk {
				t.Errorf("priority risk present = %v, want %v (risks %v)", got, tt.wantRisk, r.RiskAreas)
			}
		})
	}
}

func TestGenerate_ScopeCreepRisk(t *testing.T) {
	g := newTestGenerator(t)
	desc := "https://www.figma.com/file/a1/x https://www.figma.com/file/a2/x https://www.figma.com/file/a3/x https://www.figma.com/file/a4/x"
	r, err := g.Analyze(context.Background(), normalized(t, ticket.Ticket{Title: "Redesign", Description: desc}), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !slices.Contains(r.RiskAreas, RiskScopeCreep) {
		t.Errorf("RiskAreas = %v, missing scope creep note", r.RiskAreas)
	}
	if slices.Contains(r.RiskAreas, RiskNoDesign) {
		t.Errorf("RiskAreas = %v, unexpected no-design note", r.RiskAreas)
	}
}

// TestGenerate_ContextEnrichment verifies extracted facts are substituted.
func TestGenerate_ContextEnrichment(t *testing.T) {
	g := newTestGenerator(t)
	tk := normalized(t, ticket.Ticket{ID: "PROJ-5", Title: "Checkout", Description: "Pay for the basket"})
	ec := &Context{
		Technologies:  []string{"Stripe"},
		BusinessRules: []string{"Orders must be confirmed within 10 minutes."},
		Screens:       []string{"Basket"},
		Sources:       []string{"confluence"},
	}
	r, err := g.Analyze(context.Background(), tk, ec)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !slices.Contains(r.Questions[QuestionGeneral], "How will Stripe be used in Checkout?") {
		t.Errorf("general questions missing technology question: %v", r.Questions[QuestionGeneral])
	}
	if !slices.Contains(r.Questions[QuestionBusiness], "Does Checkout need to enforce the documented rule: Orders must be confirmed within 10 minutes?") {
		t.Errorf("business questions missing rule question: %v", r.Questions[QuestionBusiness])
	}
	if !slices.Contains(r.TestCases[TestIntegration], "Verify Checkout integrates correctly with Stripe") {
		t.Errorf("integration tests missing technology test: %v", r.TestCases[TestIntegration])
	}
	if !reflect.DeepEqual(r.Metadata.ContextSources, []string{"confluence"}) {
		t.Errorf("ContextSources = %v", r.Metadata.ContextSources)
	}
}

func TestGenerate_EnhancerMergesAndDedupes(t *testing.T) {
	enh := &mockEnhancer{fn: func(_ context.Context, _ ticket.Ticket, r Result) map[QuestionCategory][]string {
		return map[QuestionCategory][]string{
			QuestionGeneral: {"Is there a feature flag?", r.Questions[QuestionGeneral][0]},
		}
	}}
	g := newTestGenerator(t, WithEnhancer(enh))
	r, err := g.Analyze(context.Background(), normalized(t, ticket.Ticket{Title: "Search"}), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	qs := r.Questions[QuestionGeneral]
	if qs[len(qs)-1] != "Is there a feature flag?" {
		t.Errorf("last general question = %q, want enhancer question", qs[len(qs)-1])
	}
	if !r.Metadata.Enhanced {
		t.Error("Metadata.Enhanced = false, want true")
	}
}

func TestGenerate_EnhancerEmptyLeavesBaseline(t *testing.T) {
	enh := &mockEnhancer{fn: func(context.Context, ticket.Ticket, Result) map[QuestionCategory][]string { return nil }}
	plain := newTestGenerator(t)
	withEnh := newTestGenerator(t, WithEnhancer(enh))
	tk := normalized(t, ticket.Ticket{ID: "PROJ-2", Title: "Login page"})

	a, _ := plain.Analyze(context.Background(), tk, nil)
	b, _ := withEnh.Analyze(context.Background(), tk, nil)
	if !reflect.DeepEqual(a.Questions, b.Questions) {
		t.Error("empty enhancement changed questions")
	}
	if b.Metadata.Enhanced {
		t.Error("Metadata.Enhanced = true for empty enhancement")
	}
}

func TestGenerate_Metadata(t *testing.T) {
	g := newTestGenerator(t)
	r, err := g.Analyze(context.Background(), normalized(t, ticket.Ticket{Title: "Profile edit"}), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if r.Metadata.AnalyzerVersion != Version {
		t.Errorf("AnalyzerVersion = %q, want %q", r.Metadata.AnalyzerVersion, Version)
	}
	if !r.Metadata.GeneratedAt.Equal(fixedNow) {
		t.Errorf("GeneratedAt = %v, want %v", r.Metadata.GeneratedAt, fixedNow)
	}
	if r.Metadata.RunID == "" {
		t.Error("RunID empty")
	}
	if r.QuestionCount() != len(r.AllQuestions()) {
		t.Errorf("QuestionCount() = %d, AllQuestions() = %d", r.QuestionCount(), len(r.AllQuestions()))
	}
}

func TestNewGenerator_RejectsIncompleteTable(t *testing.T) {
	tbl, err := templates.Parse([]byte("baseline:\n  questions:\n    general: [\"q\"]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := NewGenerator(tbl); err == nil {
		t.Fatal("expected error for table without design/business baselines")
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"b", "a", "b", "", "A", "a", "  "})
	want := []string{"b", "a", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe() = %v, want %v", got, want)
	}
}

// TestDedupeSections_KeepsCrossCategoryDuplicates verifies dedup is per list only.
func TestDedupeSections_KeepsCrossCategoryDuplicates(t *testing.T) {
	in := map[QuestionCategory][]string{
		QuestionGeneral:  {"same", "same"},
		QuestionBusiness: {"same"},
	}
	got := DedupeSections(in)
	if !reflect.DeepEqual(got[QuestionGeneral], []string{"same"}) || !reflect.DeepEqual(got[QuestionBusiness], []string{"same"}) {
		t.Errorf("DedupeSections() = %v", got)
	}
}

func TestAggregate(t *testing.T) {
	a := map[QuestionCategory][]string{QuestionGeneral: {"q1", "q2"}}
	b := map[QuestionCategory][]string{QuestionGeneral: {"q2", "q3"}, QuestionDesign: {"d1"}}

	got := Aggregate(QuestionCategories, a, b)
	if want := []string{"q1", "q2", "q3"}; !reflect.DeepEqual(got[QuestionGeneral], want) {
		t.Errorf("general = %v, want %v", got[QuestionGeneral], want)
	}
	if got[QuestionBusiness] == nil {
		t.Error("business list is nil")
	}
	if len(got[QuestionDesign]) != 1 {
		t.Errorf("design = %v", got[QuestionDesign])
	}
}
