package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// ContextCollector gathers external design and documentation context for a
// ticket. It returns nil when nothing was found.
type ContextCollector interface {
	Collect(ctx context.Context, t ticket.Ticket, pdfs []string) *analysis.Context
}

// TicketStore persists an analyzed ticket and returns its storage id.
type TicketStore interface {
	Store(ctx context.Context, t ticket.Ticket, r analysis.Result, duration time.Duration) (string, error)
}

// Request is one ticket to analyze.
type Request struct {
	Ticket ticket.Ticket
	PDFs   []string
	// NoStore skips persistence; the result is only returned.
	NoStore bool
}

// Outcome is the analyzed ticket with its result.
type Outcome struct {
	ID     string          `json:"ticket_id"`
	Ticket ticket.Ticket   `json:"ticket"`
	Result analysis.Result `json:"result"`
	Stored bool            `json:"stored"`
}

// Analyzer runs the full analysis flow: normalize, collect context, generate
// questions and test cases, then store.
type Analyzer struct {
	generator *analysis.Generator
	collector ContextCollector
	store     TicketStore
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCollector enables context extraction. A nil collector is ignored.
func WithCollector(c ContextCollector) Option {
	return func(a *Analyzer) { a.collector = c }
}

// WithStore enables persistence of results.
func WithStore(s TicketStore) Option {
	return func(a *Analyzer) { a.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer creates an Analyzer around g.
func NewAnalyzer(g *analysis.Generator, opts ...Option) *Analyzer {
	a := &Analyzer{
		generator: g,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CanStore reports whether the analyzer persists results.
func (a *Analyzer) CanStore() bool { return a.store != nil }

// Run analyzes req.Ticket. Input errors (ticket.ErrInsufficientData) are
// returned unwrapped so callers can match them with errors.Is.
func (a *Analyzer) Run(ctx context.Context, req Request) (Outcome, error) {
	start := a.now()
	t := req.Ticket
	if err := t.Normalize(start); err != nil {
		return Outcome{}, err
	}

	var ec *analysis.Context
	if a.collector != nil {
		ec = a.collector.Collect(ctx, t, req.PDFs)
	}

	r, err := a.generator.Analyze(ctx, t, ec)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{ID: t.ID, Ticket: t, Result: r}
	if req.NoStore || a.store == nil {
		a.logger.Debug("ticket analyzed", "id", t.ID, "stored", false)
		return out, nil
	}

	id, err := a.store.Store(ctx, t, r, a.now().Sub(start))
	if err != nil {
		return Outcome{}, fmt.Errorf("storing ticket %s: %w", t.ID, err)
	}
	out.ID = id
	out.Stored = true
	a.logger.Info("ticket analyzed", "id", id, "questions", r.QuestionCount(), "test_cases", r.TestCaseCount())
	return out, nil
}
