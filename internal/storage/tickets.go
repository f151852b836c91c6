package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/classify"
	"github.com/kalambet/ticketlens/internal/search"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// childTables lists every table keyed by ticket_id, in delete order.
var childTables = []string{
	"ticket_labels",
	"ticket_components",
	"ticket_categories",
	"figma_links",
	"questions",
	"test_cases",
	"risk_areas",
	"technical_considerations",
	"clarifications",
}

// --- Tickets ---

// SaveTicket upserts the ticket row and replaces all of its child rows in a
// single transaction. Storing the same id twice never duplicates rows.
func (s *Store) SaveTicket(ctx context.Context, rec TicketRecord) error {
	t, r := rec.Ticket, rec.Result
	if t.ID == "" {
		return fmt.Errorf("ticket id is empty")
	}
	storedAt := rec.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (id, title, description, priority, assignee, reporter, created_at, updated_at,
				stored_at, generated_at, analysis_duration_ms, analyzer_version, run_id, enhanced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				priority = excluded.priority,
				assignee = excluded.assignee,
				reporter = excluded.reporter,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				stored_at = excluded.stored_at,
				generated_at = excluded.generated_at,
				analysis_duration_ms = excluded.analysis_duration_ms,
				analyzer_version = excluded.analyzer_version,
				run_id = excluded.run_id,
				enhanced = excluded.enhanced`,
			t.ID, t.Title, t.Description, string(t.Priority), t.Assignee, t.Reporter,
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt), formatTime(storedAt),
			formatTime(r.Metadata.GeneratedAt), r.Metadata.Duration.Milliseconds(),
			r.Metadata.AnalyzerVersion, r.Metadata.RunID, r.Metadata.Enhanced,
		)
		if err != nil {
			return fmt.Errorf("upserting ticket: %w", err)
		}

		if err := deleteChildren(ctx, tx, t.ID); err != nil {
			return err
		}

		if err := insertList(ctx, tx, "ticket_labels", "label", t.ID, t.Labels); err != nil {
			return err
		}
		if err := insertList(ctx, tx, "ticket_components", "component", t.ID, t.Components); err != nil {
			return err
		}
		categories := make([]string, len(r.Categories))
		for i, c := range r.Categories {
			categories[i] = string(c)
		}
		if err := insertList(ctx, tx, "ticket_categories", "category", t.ID, categories); err != nil {
			return err
		}
		if err := insertList(ctx, tx, "figma_links", "url", t.ID, t.FigmaLinks); err != nil {
			return err
		}
		if err := insertList(ctx, tx, "risk_areas", "risk_text", t.ID, r.RiskAreas); err != nil {
			return err
		}
		if err := insertList(ctx, tx, "technical_considerations", "text", t.ID, r.TechnicalConsiderations); err != nil {
			return err
		}
		if err := insertList(ctx, tx, "clarifications", "text", t.ID, r.ClarificationsNeeded); err != nil {
			return err
		}

		for _, c := range analysis.QuestionCategories {
			for i, q := range r.Questions[c] {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO questions (ticket_id, question_type, position, question_text) VALUES (?, ?, ?, ?)`,
					t.ID, string(c), i, q); err != nil {
					return fmt.Errorf("inserting question: %w", err)
				}
			}
		}
		for _, c := range analysis.TestCategories {
			for i, tc := range r.TestCases[c] {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO test_cases (ticket_id, category, position, test_case_text) VALUES (?, ?, ?, ?)`,
					t.ID, string(c), i, tc); err != nil {
					return fmt.Errorf("inserting test case: %w", err)
				}
			}
		}
		return nil
	})
}

func deleteChildren(ctx context.Context, tx *sqlx.Tx, id string) error {
	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE ticket_id = ?", id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func insertList(ctx context.Context, tx *sqlx.Tx, table, column, id string, items []string) error {
	query := fmt.Sprintf("INSERT INTO %s (ticket_id, position, %s) VALUES (?, ?, ?)", table, column)
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, query, id, i, item); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) selectList(ctx context.Context, table, column, id string) ([]string, error) {
	out := []string{}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE ticket_id = ? ORDER BY position", column, table)
	if err := s.db.SelectContext(ctx, &out, query, id); err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	return out, nil
}

// GetRecord rebuilds a stored ticket and its analysis from the relational rows.
func (s *Store) GetRecord(ctx context.Context, id string) (TicketRecord, error) {
	var row ticketRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, title, description, priority, assignee, reporter, created_at, updated_at, stored_at,
			generated_at, analysis_duration_ms, analyzer_version, run_id, enhanced
		FROM tickets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return TicketRecord{}, ErrNotFound
	}
	if err != nil {
		return TicketRecord{}, err
	}

	rec := TicketRecord{
		Ticket: ticket.Ticket{
			ID:          row.ID,
			Title:       row.Title,
			Description: row.Description,
			Priority:    ticket.Priority(row.Priority),
			Assignee:    row.Assignee,
			Reporter:    row.Reporter,
		},
		Result: analysis.Result{
			Questions: make(map[analysis.QuestionCategory][]string),
			TestCases: make(map[analysis.TestCategory][]string),
			Metadata: analysis.Metadata{
				RunID:           row.RunID,
				Duration:        time.Duration(row.DurationMS) * time.Millisecond,
				AnalyzerVersion: row.AnalyzerVersion,
				Enhanced:        row.Enhanced,
			},
		},
	}
	if rec.Ticket.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return TicketRecord{}, fmt.Errorf("parsing created_at for ticket %s: %w", id, err)
	}
	if rec.Ticket.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return TicketRecord{}, fmt.Errorf("parsing updated_at for ticket %s: %w", id, err)
	}
	if rec.StoredAt, err = parseTime(row.StoredAt); err != nil {
		return TicketRecord{}, fmt.Errorf("parsing stored_at for ticket %s: %w", id, err)
	}
	if rec.Result.Metadata.GeneratedAt, err = parseTime(row.GeneratedAt); err != nil {
		return TicketRecord{}, fmt.Errorf("parsing generated_at for ticket %s: %w", id, err)
	}

	lists := []struct {
		table, column string
		dst           *[]string
	}{
		{"ticket_labels", "label", &rec.Ticket.Labels},
		{"ticket_components", "component", &rec.Ticket.Components},
		{"figma_links", "url", &rec.Ticket.FigmaLinks},
		{"risk_areas", "risk_text", &rec.Result.RiskAreas},
		{"technical_considerations", "text", &rec.Result.TechnicalConsiderations},
		{"clarifications", "text", &rec.Result.ClarificationsNeeded},
	}
	for _, l := range lists {
		if *l.dst, err = s.selectList(ctx, l.table, l.column, id); err != nil {
			return TicketRecord{}, err
		}
	}

	categories, err := s.selectList(ctx, "ticket_categories", "category", id)
	if err != nil {
		return TicketRecord{}, err
	}
	for _, c := range categories {
		rec.Result.Categories = append(rec.Result.Categories, classify.Category(c))
	}

	var questions []struct {
		Type string `db:"question_type"`
		Text string `db:"question_text"`
	}
	if err := s.db.SelectContext(ctx, &questions,
		`SELECT question_type, question_text FROM questions WHERE ticket_id = ? ORDER BY question_type, position`, id); err != nil {
		return TicketRecord{}, fmt.Errorf("reading questions: %w", err)
	}
	for _, q := range questions {
		c := analysis.QuestionCategory(q.Type)
		rec.Result.Questions[c] = append(rec.Result.Questions[c], q.Text)
	}

	var tests []struct {
		Category string `db:"category"`
		Text     string `db:"test_case_text"`
	}
	if err := s.db.SelectContext(ctx, &tests,
		`SELECT category, test_case_text FROM test_cases WHERE ticket_id = ? ORDER BY category, position`, id); err != nil {
		return TicketRecord{}, fmt.Errorf("reading test cases: %w", err)
	}
	for _, tc := range tests {
		c := analysis.TestCategory(tc.Category)
		rec.Result.TestCases[c] = append(rec.Result.TestCases[c], tc.Text)
	}

	for _, c := range analysis.QuestionCategories {
		if rec.Result.Questions[c] == nil {
			rec.Result.Questions[c] = []string{}
		}
	}
	for _, c := range analysis.TestCategories {
		if rec.Result.TestCases[c] == nil {
			rec.Result.TestCases[c] = []string{}
		}
	}
	return rec, nil
}

// Exists reports whether a ticket with id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM tickets WHERE id = ?", id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// TicketIDs returns all stored ids, newest first.
func (s *Store) TicketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, "SELECT id FROM tickets ORDER BY created_at DESC, id ASC")
	return ids, err
}

// StoredStamps returns the stored_at of every ticket, keyed by id.
func (s *Store) StoredStamps(ctx context.Context) (map[string]time.Time, error) {
	var rows []struct {
		ID       string `db:"id"`
		StoredAt string `db:"stored_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, stored_at FROM tickets"); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		t, err := parseTime(r.StoredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing stored_at for ticket %s: %w", r.ID, err)
		}
		out[r.ID] = t
	}
	return out, nil
}

const summarySelect = `
	SELECT t.id, t.title, t.priority, t.created_at, t.stored_at,
		(SELECT COUNT(*) FROM questions q WHERE q.ticket_id = t.id) AS question_count,
		(SELECT COUNT(*) FROM test_cases c WHERE c.ticket_id = t.id) AS test_case_count,
		(SELECT COUNT(*) FROM risk_areas r WHERE r.ticket_id = t.id) AS risk_count,
		(SELECT COUNT(*) FROM figma_links f WHERE f.ticket_id = t.id) AS figma_link_count
	FROM tickets t`

func (s *Store) selectSummaries(ctx context.Context, query string, args ...any) ([]TicketSummary, error) {
	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]TicketSummary, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for ticket %s: %w", r.ID, err)
		}
		stored, err := parseTime(r.StoredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing stored_at for ticket %s: %w", r.ID, err)
		}
		out = append(out, TicketSummary{
			ID:             r.ID,
			Title:          r.Title,
			Priority:       r.Priority,
			CreatedAt:      created,
			StoredAt:       stored,
			QuestionCount:  r.QuestionCount,
			TestCaseCount:  r.TestCaseCount,
			RiskCount:      r.RiskCount,
			FigmaLinkCount: r.FigmaLinkCount,
		})
	}
	return out, nil
}

// ListTickets returns summaries newest first. limit <= 0 returns everything.
func (s *Store) ListTickets(ctx context.Context, limit, offset int) ([]TicketSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return s.selectSummaries(ctx, summarySelect+`
		ORDER BY t.created_at DESC, t.id ASC
		LIMIT ? OFFSET ?`, limit, offset)
}

// RecentTickets returns tickets created at or after since, newest first.
func (s *Store) RecentTickets(ctx context.Context, since time.Time) ([]TicketSummary, error) {
	return s.selectSummaries(ctx, summarySelect+`
		WHERE t.created_at >= ?
		ORDER BY t.created_at DESC, t.id ASC`, formatTime(since))
}

// Summaries returns the summaries for ids in the order given. Unknown ids are
// skipped.
func (s *Store) Summaries(ctx context.Context, ids []string) ([]TicketSummary, error) {
	if len(ids) == 0 {
		return []TicketSummary{}, nil
	}
	query, args, err := sqlx.In(summarySelect+` WHERE t.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building summary query: %w", err)
	}
	rows, err := s.selectSummaries(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]TicketSummary, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]TicketSummary, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteTicket removes a ticket and all of its child rows.
func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM tickets WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting ticket: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAllTickets removes every ticket and returns how many were deleted.
func (s *Store) DeleteAllTickets(ctx context.Context) (int, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range childTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM tickets")
		if err != nil {
			return fmt.Errorf("deleting tickets: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return int(deleted), err
}

// IndexDocuments returns the searchable view of every stored ticket, used to
// rebuild the search index.
func (s *Store) IndexDocuments(ctx context.Context) ([]search.Document, error) {
	var rows []struct {
		ID          string `db:"id"`
		Title       string `db:"title"`
		Description string `db:"description"`
		CreatedAt   string `db:"created_at"`
		StoredAt    string `db:"stored_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, title, description, created_at, stored_at FROM tickets"); err != nil {
		return nil, fmt.Errorf("reading tickets: %w", err)
	}

	type pair struct {
		TicketID string `db:"ticket_id"`
		Text     string `db:"text"`
	}
	var labels, questions []pair
	if err := s.db.SelectContext(ctx, &labels,
		"SELECT ticket_id, label AS text FROM ticket_labels ORDER BY ticket_id, position"); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	if err := s.db.SelectContext(ctx, &questions,
		"SELECT ticket_id, question_text AS text FROM questions ORDER BY ticket_id, id"); err != nil {
		return nil, fmt.Errorf("reading questions: %w", err)
	}
	labelsByID := make(map[string][]string)
	for _, l := range labels {
		labelsByID[l.TicketID] = append(labelsByID[l.TicketID], l.Text)
	}
	questionsByID := make(map[string][]string)
	for _, q := range questions {
		questionsByID[q.TicketID] = append(questionsByID[q.TicketID], q.Text)
	}

	docs := make([]search.Document, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for ticket %s: %w", r.ID, err)
		}
		stored, err := parseTime(r.StoredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing stored_at for ticket %s: %w", r.ID, err)
		}
		docs = append(docs, search.Document{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Labels:      labelsByID[r.ID],
			Questions:   questionsByID[r.ID],
			CreatedAt:   created,
			StoredAt:    stored,
		})
	}
	return docs, nil
}
