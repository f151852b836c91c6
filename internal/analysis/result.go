package analysis

import (
	"time"

	"github.com/kalambet/ticketlens/internal/classify"
)

// Version is recorded in every result's metadata.
const Version = "1.0.0"

// QuestionCategory groups clarification questions.
type QuestionCategory string

const (
	QuestionGeneral  QuestionCategory = "general"
	QuestionDesign   QuestionCategory = "design"
	QuestionBusiness QuestionCategory = "business"
)

// QuestionCategories is the fixed reporting order.
var QuestionCategories = []QuestionCategory{QuestionGeneral, QuestionDesign, QuestionBusiness}

// TestCategory groups generated test cases.
type TestCategory string

const (
	TestFunctional    TestCategory = "functional"
	TestErrorHandling TestCategory = "error-handling"
	TestPerformance   TestCategory = "performance"
	TestAccessibility TestCategory = "accessibility"
	TestMobile        TestCategory = "mobile"
	TestSecurity      TestCategory = "security"
	TestUIUX          TestCategory = "ui-ux"
	TestIntegration   TestCategory = "integration"
	TestDataIntegrity TestCategory = "data-integrity"
)

// TestCategories is the fixed reporting order.
var TestCategories = []TestCategory{
	TestFunctional, TestErrorHandling, TestPerformance, TestAccessibility, TestMobile,
	TestSecurity, TestUIUX, TestIntegration, TestDataIntegrity,
}

// Result is the structured output of analyzing one ticket snapshot.
type Result struct {
	Questions               map[QuestionCategory][]string `json:"questions"`
	TestCases               map[TestCategory][]string     `json:"test_cases"`
	RiskAreas               []string                      `json:"risk_areas"`
	TechnicalConsiderations []string                      `json:"technical_considerations"`
	ClarificationsNeeded    []string                      `json:"clarifications_needed"`
	Categories              []classify.Category           `json:"categories"`
	Metadata                Metadata                      `json:"metadata"`
}

type Metadata struct {
	RunID           string        `json:"run_id"`
	GeneratedAt     time.Time     `json:"generated_at"`
	Duration        time.Duration `json:"duration_ns"`
	AnalyzerVersion string        `json:"analyzer_version"`
	Enhanced        bool          `json:"enhanced"`
	ContextSources  []string      `json:"context_sources,omitempty"`
}

// QuestionCount returns the number of questions across all categories.
func (r Result) QuestionCount() int {
	n := 0
	for _, qs := range r.Questions {
		n += len(qs)
	}
	return n
}

// TestCaseCount returns the number of test cases across all categories.
func (r Result) TestCaseCount() int {
	n := 0
	for _, tc := range r.TestCases {
		n += len(tc)
	}
	return n
}

// AllQuestions returns every question in reporting order.
func (r Result) AllQuestions() []string {
	var out []string
	for _, c := range QuestionCategories {
		out = append(out, r.Questions[c]...)
	}
	return out
}

// Context is optional enrichment produced by content extractors. Any field
// may be empty.
type Context struct {
	Technologies   []string `json:"technologies,omitempty"`
	BusinessRules  []string `json:"business_rules,omitempty"`
	Components     []string `json:"components,omitempty"`
	Screens        []string `json:"screens,omitempty"`
	DesignElements []string `json:"design_elements,omitempty"`
	DesignType     string   `json:"design_type,omitempty"`
	Complexity     float64  `json:"complexity,omitempty"`
	Pages          int      `json:"pages,omitempty"`
	Sources        []string `json:"sources,omitempty"`
}
