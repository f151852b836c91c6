package storage

import (
	"context"
	"fmt"
	"time"
)

// --- Analytics ---

// Statistics computes aggregate counts with one query per figure.
func (s *Store) Statistics(ctx context.Context) (Stats, error) {
	st := Stats{
		PriorityDistribution: map[string]int{},
		CategoryBreakdown:    map[string]int{},
		LabelBreakdown:       map[string]int{},
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&st.TotalTickets, "SELECT COUNT(*) FROM tickets"},
		{&st.TotalQuestions, "SELECT COUNT(*) FROM questions"},
		{&st.TotalTestCases, "SELECT COUNT(*) FROM test_cases"},
		{&st.TotalRisks, "SELECT COUNT(*) FROM risk_areas"},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.query); err != nil {
			return Stats{}, fmt.Errorf("counting: %w", err)
		}
	}
	if st.TotalTickets > 0 {
		st.AvgQuestionsPerTicket = float64(st.TotalQuestions) / float64(st.TotalTickets)
		st.AvgTestCasesPerTicket = float64(st.TotalTestCases) / float64(st.TotalTickets)
	}

	groups := []struct {
		dst   map[string]int
		query string
	}{
		{st.PriorityDistribution, "SELECT priority AS name, COUNT(*) AS count FROM tickets GROUP BY priority"},
		{st.CategoryBreakdown, "SELECT category AS name, COUNT(*) AS count FROM ticket_categories GROUP BY category"},
		{st.LabelBreakdown, "SELECT label AS name, COUNT(*) AS count FROM ticket_labels GROUP BY label"},
	}
	for _, g := range groups {
		var rows []struct {
			Name  string `db:"name"`
			Count int    `db:"count"`
		}
		if err := s.db.SelectContext(ctx, &rows, g.query); err != nil {
			return Stats{}, fmt.Errorf("grouping: %w", err)
		}
		for _, r := range rows {
			g.dst[r.Name] = r.Count
		}
	}
	return st, nil
}

// Timeline counts tickets per creation day, oldest day first. A zero since
// covers the whole history.
func (s *Store) Timeline(ctx context.Context, since time.Time) ([]DayCount, error) {
	out := []DayCount{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT date(created_at) AS day, COUNT(*) AS count
		FROM tickets
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("reading timeline: %w", err)
	}
	return out, nil
}
