package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// --- Feedback ---

// Feedback is one rating of one section of a ticket's analysis.
type Feedback struct {
	ID             string    `json:"id"`
	TicketID       string    `json:"ticket_id"`
	Section        string    `json:"section"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	HelpfulItems   []string  `json:"helpful_items"`
	UnhelpfulItems []string  `json:"unhelpful_items"`
	MissingTopics  []string  `json:"missing_topics"`
	TicketTitle    string    `json:"ticket_title,omitempty"`
	DetectedTopics []string  `json:"detected_topics"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackFilter narrows feedback queries. Zero values match everything.
type FeedbackFilter struct {
	Section string
	Since   time.Time
}

func (f FeedbackFilter) where() (string, []any) {
	clause := "WHERE created_at >= ?"
	args := []any{formatTime(f.Since)}
	if f.Section != "" {
		clause += " AND section = ?"
		args = append(args, f.Section)
	}
	return clause, args
}

// SectionRating aggregates the ratings of one section.
type SectionRating struct {
	Section       string  `db:"section" json:"section"`
	Count         int     `db:"count" json:"count"`
	AverageRating float64 `db:"average" json:"average_rating"`
}

// FeedbackStats are the relational aggregates over matching feedback.
type FeedbackStats struct {
	Total              int             `json:"total_feedback"`
	AverageRating      float64         `json:"average_rating"`
	RatingDistribution map[int]int     `json:"rating_distribution"`
	BySection          []SectionRating `json:"by_section"`
}

type feedbackRow struct {
	ID             string `db:"id"`
	TicketID       string `db:"ticket_id"`
	Section        string `db:"section"`
	Rating         int    `db:"rating"`
	Comment        string `db:"comment"`
	UserID         string `db:"user_id"`
	HelpfulItems   string `db:"helpful_items"`
	UnhelpfulItems string `db:"unhelpful_items"`
	MissingTopics  string `db:"missing_topics"`
	TicketTitle    string `db:"ticket_title"`
	DetectedTopics string `db:"detected_topics"`
	CreatedAt      string `db:"created_at"`
}

const feedbackColumns = `id, ticket_id, section, rating, comment, user_id, helpful_items,
	unhelpful_items, missing_topics, ticket_title, detected_topics, created_at`

func (r feedbackRow) feedback() (Feedback, error) {
	fb := Feedback{
		ID:          r.ID,
		TicketID:    r.TicketID,
		Section:     r.Section,
		Rating:      r.Rating,
		Comment:     r.Comment,
		UserID:      r.UserID,
		TicketTitle: r.TicketTitle,
	}
	lists := []struct {
		dst *[]string
		raw string
	}{
		{&fb.HelpfulItems, r.HelpfulItems},
		{&fb.UnhelpfulItems, r.UnhelpfulItems},
		{&fb.MissingTopics, r.MissingTopics},
		{&fb.DetectedTopics, r.DetectedTopics},
	}
	for _, l := range lists {
		if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
			return Feedback{}, fmt.Errorf("decoding feedback %s: %w", r.ID, err)
		}
	}
	var err error
	if fb.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return Feedback{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return fb, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// SaveFeedback inserts all entries in one transaction.
func (s *Store) SaveFeedback(ctx context.Context, entries ...Feedback) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, fb := range entries {
			var lists [4]string
			for i, items := range [][]string{fb.HelpfulItems, fb.UnhelpfulItems, fb.MissingTopics, fb.DetectedTopics} {
				enc, err := encodeList(items)
				if err != nil {
					return err
				}
				lists[i] = enc
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO feedback (`+feedbackColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				fb.ID, fb.TicketID, fb.Section, fb.Rating, fb.Comment, fb.UserID,
				lists[0], lists[1], lists[2], fb.TicketTitle, lists[3], formatTime(fb.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("inserting feedback %s: %w", fb.ID, err)
			}
		}
		return nil
	})
}

// ListFeedback returns matching feedback newest first.
func (s *Store) ListFeedback(ctx context.Context, f FeedbackFilter) ([]Feedback, error) {
	where, args := f.where()
	var rows []feedbackRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+feedbackColumns+`
		FROM feedback `+where+`
		ORDER BY created_at DESC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	return feedbackFromRows(rows)
}

// TicketFeedback returns the feedback left on one ticket, newest first.
func (s *Store) TicketFeedback(ctx context.Context, ticketID string) ([]Feedback, error) {
	var rows []feedbackRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+feedbackColumns+`
		FROM feedback WHERE ticket_id = ?
		ORDER BY created_at DESC, id ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing ticket feedback: %w", err)
	}
	return feedbackFromRows(rows)
}

// LowRatedFeedback returns entries rated at or below threshold, newest first.
func (s *Store) LowRatedFeedback(ctx context.Context, threshold, limit int) ([]Feedback, error) {
	var rows []feedbackRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+feedbackColumns+`
		FROM feedback WHERE rating <= ?
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("listing low rated feedback: %w", err)
	}
	return feedbackFromRows(rows)
}

func feedbackFromRows(rows []feedbackRow) ([]Feedback, error) {
	out := make([]Feedback, 0, len(rows))
	for _, r := range rows {
		fb, err := r.feedback()
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, nil
}

// FeedbackStats aggregates matching feedback. The distribution always has
// keys 1 through 5.
func (s *Store) FeedbackStats(ctx context.Context, f FeedbackFilter) (FeedbackStats, error) {
	where, args := f.where()
	st := FeedbackStats{RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}

	var overall struct {
		Total   int     `db:"total"`
		Average float64 `db:"average"`
	}
	if err := s.db.GetContext(ctx, &overall,
		`SELECT COUNT(*) AS total, COALESCE(AVG(rating), 0) AS average FROM feedback `+where, args...); err != nil {
		return FeedbackStats{}, fmt.Errorf("averaging feedback: %w", err)
	}
	st.Total, st.AverageRating = overall.Total, overall.Average

	var dist []struct {
		Rating int `db:"rating"`
		Count  int `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &dist,
		`SELECT rating, COUNT(*) AS count FROM feedback `+where+` GROUP BY rating`, args...); err != nil {
		return FeedbackStats{}, fmt.Errorf("grouping ratings: %w", err)
	}
	for _, d := range dist {
		st.RatingDistribution[d.Rating] = d.Count
	}

	st.BySection = []SectionRating{}
	if err := s.db.SelectContext(ctx, &st.BySection, `
		SELECT section, COUNT(*) AS count, AVG(rating) AS average
		FROM feedback `+where+`
		GROUP BY section
		ORDER BY section`, args...); err != nil {
		return FeedbackStats{}, fmt.Errorf("grouping sections: %w", err)
	}
	return st, nil
}
