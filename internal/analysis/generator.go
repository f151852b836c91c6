// Package analysis turns a ticket into clarification questions, test cases,
// risks, and technical considerations using the template table.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/ticketlens/internal/classify"
	"github.com/kalambet/ticketlens/internal/templates"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// Fixed risk notes. Tools downstream match on these strings.
const (
	RiskNoDesign            = "No design reference provided"
	RiskScopeCreep          = "Multiple design files may indicate scope creep"
	RiskNoUserFlow          = "Missing user flow may lead to poor UX"
	RiskPriorityPerformance = "High-priority item without clear performance requirements"
)

// Clarification notes.
const (
	ClarifyBriefDescription = "The ticket description is quite brief. More details about requirements would be helpful."
	ClarifyPerformance      = "Performance requirements are not specified."
	ClarifyAccessibility    = "Accessibility requirements are not mentioned."
	ClarifyBusinessContext  = "Business context and user value are not clearly stated."
)

const briefDescriptionLen = 50

// signalOrder fixes the order of signal-driven technical considerations.
var signalOrder = []string{"mobile", "integration", "security", "data", "i18n", "animation", "performance"}

// Enhancer suggests extra questions for a ticket. Implementations must
// return an empty result rather than block or fail the analysis.
type Enhancer interface {
	Enhance(ctx context.Context, t ticket.Ticket, r Result) map[QuestionCategory][]string
}

// Generator builds a Result from a ticket. It holds only immutable
// configuration and is safe for concurrent use.
type Generator struct {
	table    *templates.Table
	enhancer Enhancer
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithEnhancer enables LLM question enhancement.
func WithEnhancer(e Enhancer) Option {
	return func(g *Generator) { g.enhancer = e }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator validates the table and returns a Generator. Every question and
// test-case category must have at least one baseline template.
func NewGenerator(table *templates.Table, opts ...Option) (*Generator, error) {
	if table == nil {
		return nil, fmt.Errorf("template table is nil")
	}
	for _, c := range QuestionCategories {
		if len(table.Baseline.Questions[string(c)]) == 0 {
			return nil, fmt.Errorf("template table: no baseline %s questions", c)
		}
	}
	for _, c := range TestCategories {
		if len(table.Baseline.TestCases[string(c)]) == 0 {
			return nil, fmt.Errorf("template table: no baseline %s test cases", c)
		}
	}
	g := &Generator{
		table:  table,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Analyze classifies the ticket and generates its result.
func (g *Generator) Analyze(ctx context.Context, t ticket.Ticket, ec *Context) (Result, error) {
	return g.Generate(ctx, t, classify.Classify(t), ec)
}

// Generate builds the result for t using the given categories. ec is optional.
// An empty categories slice is treated as generic.
func (g *Generator) Generate(ctx context.Context, t ticket.Ticket, categories []classify.Category, ec *Context) (Result, error) {
	if strings.TrimSpace(t.Title) == "" && strings.TrimSpace(t.Description) == "" {
		return Result{}, ticket.ErrInsufficientData
	}
	start := g.now()
	if len(categories) == 0 {
		categories = []classify.Category{classify.Generic}
	}

	vars := templates.Vars{Feature: t.Title}
	if !strings.HasPrefix(t.ID, "MANUAL-") {
		vars.Key = t.ID
	}

	agg := newAggregator()
	g.addBundle(agg, g.table.Baseline, vars)
	for _, c := range categories {
		g.addBundle(agg, g.table.Bundle(c), vars)
	}

	signals := classify.DetectSignals(t)
	g.addSignals(agg, signals)
	addClarifications(agg, t, signals)
	addFigmaQuestions(agg, len(t.FigmaLinks))

	var sources []string
	if ec != nil {
		if extra, ok := g.contextItems(ec, vars); ok {
			extra.mergeInto(agg)
			sources = ec.Sources
		}
	}

	addRisks(agg, t, signals)

	r := agg.result()
	r.Categories = append([]classify.Category(nil), categories...)

	if g.enhancer != nil {
		if err := ctx.Err(); err == nil {
			before := r.QuestionCount()
			r.Questions = Aggregate(QuestionCategories, r.Questions, g.enhancer.Enhance(ctx, t, r))
			r.Metadata.Enhanced = r.QuestionCount() > before
		}
	}

	end := g.now()
	r.Metadata.RunID = uuid.New().String()
	r.Metadata.GeneratedAt = end.UTC().Truncate(time.Second)
	r.Metadata.Duration = end.Sub(start)
	r.Metadata.AnalyzerVersion = Version
	r.Metadata.ContextSources = sources
	return r, nil
}

func (g *Generator) addBundle(agg *aggregator, b templates.Bundle, vars templates.Vars) {
	for _, c := range QuestionCategories {
		for _, s := range b.Questions[string(c)] {
			agg.questions[c] = append(agg.questions[c], templates.Fill(s, vars))
		}
	}
	for _, c := range TestCategories {
		for _, s := range b.TestCases[string(c)] {
			agg.tests[c] = append(agg.tests[c], templates.Fill(s, vars))
		}
	}
	for _, s := range b.Risks {
		agg.risks = append(agg.risks, templates.Fill(s, vars))
	}
	for _, s := range b.Technical {
		agg.technical = append(agg.technical, templates.Fill(s, vars))
	}
}

func (g *Generator) addSignals(agg *aggregator, s classify.Signals) {
	on := map[string]bool{
		"mobile":      s.Mobile,
		"integration": s.Integration,
		"security":    s.Security,
		"data":        s.Data,
		"i18n":        s.I18n,
		"animation":   s.Animation,
		"performance": s.Performance,
	}
	for _, name := range signalOrder {
		if tmpl := g.table.Signals[name]; on[name] && tmpl != "" {
			agg.technical = append(agg.technical, tmpl)
		}
	}
}

func addClarifications(agg *aggregator, t ticket.Ticket, s classify.Signals) {
	if len(strings.TrimSpace(t.Description)) < briefDescriptionLen {
		agg.clarify = append(agg.clarify, ClarifyBriefDescription)
	}
	if !s.Performance {
		agg.clarify = append(agg.clarify, ClarifyPerformance)
	}
	if !s.Accessibility {
		agg.clarify = append(agg.clarify, ClarifyAccessibility)
	}
	if !s.BusinessContext {
		agg.clarify = append(agg.clarify, ClarifyBusinessContext)
	}
}

func addFigmaQuestions(agg *aggregator, n int) {
	if n > 0 {
		agg.questions[QuestionDesign] = append(agg.questions[QuestionDesign],
			"Does the Figma design show all necessary states (default, editing, loading, error)?")
	}
	if n > 1 {
		agg.questions[QuestionDesign] = append(agg.questions[QuestionDesign],
			"How do these multiple Figma designs relate to each other in the user flow?")
	}
}

// addRisks runs after technical considerations are final, since the priority
// rule depends on them.
func addRisks(agg *aggregator, t ticket.Ticket, s classify.Signals) {
	switch n := len(t.FigmaLinks); {
	case n == 0:
		agg.risks = append(agg.risks, RiskNoDesign)
	case n > 3:
		agg.risks = append(agg.risks, RiskScopeCreep)
	}
	if !s.UserFlow {
		agg.risks = append(agg.risks, RiskNoUserFlow)
	}
	if (t.Priority == ticket.PriorityHigh || t.Priority == ticket.PriorityUnknown || t.Priority == "") && !hasPerformanceItem(agg.technical) {
		agg.risks = append(agg.risks, RiskPriorityPerformance)
	}
}

func hasPerformanceItem(items []string) bool {
	for _, s := range items {
		if strings.Contains(strings.ToLower(s), "performance") {
			return true
		}
	}
	return false
}

// contextItems collects the items derived from extracted context. Malformed
// context must not fail the analysis, so a panic here is logged and the
// context is ignored.
func (g *Generator) contextItems(ec *Context, vars templates.Vars) (items *aggregator, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Warn("ignoring malformed extracted context", "panic", rec)
			items, ok = nil, false
		}
	}()

	ct := g.table.Context
	items = newAggregator()
	fill := func(tmpl string, mutate func(*templates.Vars)) string {
		v := vars
		mutate(&v)
		return templates.Fill(tmpl, v)
	}

	for _, tech := range nonBlank(ec.Technologies) {
		if ct.Technology != "" {
			items.questions[QuestionGeneral] = append(items.questions[QuestionGeneral],
				fill(ct.Technology, func(v *templates.Vars) { v.Technology = tech }))
		}
		if ct.TechnologyTest != "" {
			items.tests[TestIntegration] = append(items.tests[TestIntegration],
				fill(ct.TechnologyTest, func(v *templates.Vars) { v.Technology = tech }))
		}
	}
	for _, rule := range nonBlank(ec.BusinessRules) {
		if ct.Rule != "" {
			items.questions[QuestionBusiness] = append(items.questions[QuestionBusiness],
				fill(ct.Rule, func(v *templates.Vars) { v.Rule = strings.TrimRight(rule, ".!?") }))
		}
	}
	for _, comp := range nonBlank(ec.Components) {
		if ct.Component != "" {
			items.questions[QuestionDesign] = append(items.questions[QuestionDesign],
				fill(ct.Component, func(v *templates.Vars) { v.Component = comp }))
		}
	}
	for _, screen := range nonBlank(ec.Screens) {
		if ct.Screen != "" {
			items.questions[QuestionDesign] = append(items.questions[QuestionDesign],
				fill(ct.Screen, func(v *templates.Vars) { v.Screen = screen }))
		}
	}
	if ec.Complexity >= 7 {
		items.risks = append(items.risks,
			fmt.Sprintf("Design complexity score %.1f suggests splitting the work into smaller deliverables", ec.Complexity))
	}
	if ec.DesignType == "wireframe" {
		items.clarify = append(items.clarify, "Only wireframes were provided; visual design details are still open.")
	}
	return items, true
}

// mergeInto appends a's items to dst.
func (a *aggregator) mergeInto(dst *aggregator) {
	for c, qs := range a.questions {
		dst.questions[c] = append(dst.questions[c], qs...)
	}
	for c, tc := range a.tests {
		dst.tests[c] = append(dst.tests[c], tc...)
	}
	dst.risks = append(dst.risks, a.risks...)
	dst.technical = append(dst.technical, a.technical...)
	dst.clarify = append(dst.clarify, a.clarify...)
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
