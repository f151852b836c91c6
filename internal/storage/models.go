package storage

import (
	"errors"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TicketRecord is a ticket together with the analysis stored for it.
type TicketRecord struct {
	Ticket   ticket.Ticket   `json:"ticket"`
	Result   analysis.Result `json:"analysis"`
	StoredAt time.Time       `json:"stored_at"`
}

// TicketSummary is the listing view of a stored ticket.
type TicketSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Priority       string    `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
	StoredAt       time.Time `json:"stored_at"`
	QuestionCount  int       `json:"question_count"`
	TestCaseCount  int       `json:"test_case_count"`
	RiskCount      int       `json:"risk_count"`
	FigmaLinkCount int       `json:"figma_link_count"`
}

// summaryRow is the scan target for TicketSummary queries; times are stored
// as RFC 3339 text.
type summaryRow struct {
	ID             string `db:"id"`
	Title          string `db:"title"`
	Priority       string `db:"priority"`
	CreatedAt      string `db:"created_at"`
	StoredAt       string `db:"stored_at"`
	QuestionCount  int    `db:"question_count"`
	TestCaseCount  int    `db:"test_case_count"`
	RiskCount      int    `db:"risk_count"`
	FigmaLinkCount int    `db:"figma_link_count"`
}

type ticketRow struct {
	ID              string `db:"id"`
	Title           string `db:"title"`
	Description     string `db:"description"`
	Priority        string `db:"priority"`
	Assignee        string `db:"assignee"`
	Reporter        string `db:"reporter"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
	StoredAt        string `db:"stored_at"`
	GeneratedAt     string `db:"generated_at"`
	DurationMS      int64  `db:"analysis_duration_ms"`
	AnalyzerVersion string `db:"analyzer_version"`
	RunID           string `db:"run_id"`
	Enhanced        bool   `db:"enhanced"`
}

// Stats are aggregate counts over the relational tables.
type Stats struct {
	TotalTickets          int            `json:"total_tickets"`
	TotalQuestions        int            `json:"total_questions"`
	TotalTestCases        int            `json:"total_test_cases"`
	TotalRisks            int            `json:"total_risks"`
	AvgQuestionsPerTicket float64        `json:"avg_questions_per_ticket"`
	AvgTestCasesPerTicket float64        `json:"avg_test_cases_per_ticket"`
	PriorityDistribution  map[string]int `json:"priority_distribution"`
	CategoryBreakdown     map[string]int `json:"category_breakdown"`
	LabelBreakdown        map[string]int `json:"label_breakdown"`
}

// DayCount is one point of the ticket timeline.
type DayCount struct {
	Date  string `db:"day" json:"date"`
	Count int    `db:"count" json:"count"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	Result      string
}
