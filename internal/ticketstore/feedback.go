package ticketstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// ErrInvalidFeedback is returned for feedback that names an unknown section,
// rates outside 1..5, or carries no ratings at all.
var ErrInvalidFeedback = errors.New("invalid feedback")

// FeedbackSections are the parts of an analysis that can be rated.
var FeedbackSections = []string{
	"overall",
	"questions",
	"business_questions",
	"design_questions",
	"test_cases",
	"risks",
	"technical_considerations",
	"clarifications",
}

// Low rating lookups.
const (
	LowRatingThreshold = 3
	lowRatedLimit      = 10
	commentSampleSize  = 5
)

// FeedbackEntry rates one section of a stored analysis.
type FeedbackEntry struct {
	Section        string   `json:"section"`
	Rating         int      `json:"rating"`
	Comment        string   `json:"comment,omitempty"`
	HelpfulItems   []string `json:"helpful_items,omitempty"`
	UnhelpfulItems []string `json:"unhelpful_items,omitempty"`
	MissingTopics  []string `json:"missing_topics,omitempty"`
}

func (fe FeedbackEntry) validate() error {
	if !slices.Contains(FeedbackSections, fe.Section) {
		return fmt.Errorf("%w: unknown section %q (want one of %s)", ErrInvalidFeedback, fe.Section, strings.Join(FeedbackSections, ", "))
	}
	if fe.Rating < 1 || fe.Rating > 5 {
		return fmt.Errorf("%w: %s rating %d is outside 1..5", ErrInvalidFeedback, fe.Section, fe.Rating)
	}
	return nil
}

// SubmitFeedback records ratings for the stored ticket id. Every entry must
// name a different section. The ticket's title and categories are kept with
// each row so summaries survive the ticket being deleted.
func (e *Engine) SubmitFeedback(ctx context.Context, id, userID string, entries []FeedbackEntry) ([]storage.Feedback, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no ratings given", ErrInvalidFeedback)
	}
	entries = slices.Clone(entries)
	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		entries[i].Section = strings.ToLower(strings.TrimSpace(entries[i].Section))
		if err := entries[i].validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[entries[i].Section]; dup {
			return nil, fmt.Errorf("%w: section %q rated twice", ErrInvalidFeedback, entries[i].Section)
		}
		seen[entries[i].Section] = struct{}{}
	}

	rec, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	topics := make([]string, len(rec.Result.Categories))
	for i, c := range rec.Result.Categories {
		topics[i] = string(c)
	}

	now := e.now().UTC()
	rows := make([]storage.Feedback, len(entries))
	for i, fe := range entries {
		rows[i] = storage.Feedback{
			ID:             uuid.New().String(),
			TicketID:       rec.Ticket.ID,
			Section:        fe.Section,
			Rating:         fe.Rating,
			Comment:        strings.TrimSpace(fe.Comment),
			UserID:         strings.TrimSpace(userID),
			HelpfulItems:   cleanItems(fe.HelpfulItems),
			UnhelpfulItems: cleanItems(fe.UnhelpfulItems),
			MissingTopics:  cleanItems(fe.MissingTopics),
			TicketTitle:    rec.Ticket.Title,
			DetectedTopics: topics,
			CreatedAt:      now,
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.store.SaveFeedback(ctx, rows...); err != nil {
		return nil, fmt.Errorf("saving feedback: %w", err)
	}
	e.logger.Info("feedback recorded", "id", rec.Ticket.ID, "sections", len(rows))
	return rows, nil
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// TicketFeedback returns the feedback left on id, newest first.
func (e *Engine) TicketFeedback(ctx context.Context, id string) ([]storage.Feedback, error) {
	return e.store.TicketFeedback(ctx, ticket.SanitizeID(id))
}

// TopicRating aggregates ratings by detected ticket category.
type TopicRating struct {
	Topic         string  `json:"topic"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// FeedbackSummary is the aggregate view used to find weak spots in the
// generated analyses.
type FeedbackSummary struct {
	storage.FeedbackStats
	CommonComplaints       []string           `json:"common_complaints"`
	CommonPraises          []string           `json:"common_praises"`
	ImprovementSuggestions []string           `json:"improvement_suggestions"`
	MissingTopics          []string           `json:"missing_topics"`
	ByTopic                []TopicRating      `json:"by_topic"`
	LowRated               []storage.Feedback `json:"low_rated"`
}

var (
	complaintKeywords = []string{
		"generic", "not relevant", "too basic", "missing", "unhelpful",
		"wrong", "incorrect", "useless", "unclear", "confusing",
	}
	praiseKeywords = []string{
		"helpful", "relevant", "good", "great", "excellent", "useful",
		"specific", "detailed", "comprehensive", "accurate",
	}
	suggestionKeywords = []string{
		"should", "could", "need", "suggest", "recommend", "improve",
		"add", "include", "consider", "better",
	}
)

// FeedbackSummary aggregates feedback for section (all sections when empty)
// left within the last days days (all history when days <= 0). LowRated is
// not narrowed by either filter.
func (e *Engine) FeedbackSummary(ctx context.Context, section string, days int) (FeedbackSummary, error) {
	filter := storage.FeedbackFilter{Section: strings.ToLower(strings.TrimSpace(section))}
	if filter.Section != "" && !slices.Contains(FeedbackSections, filter.Section) {
		return FeedbackSummary{}, fmt.Errorf("%w: unknown section %q", ErrInvalidFeedback, section)
	}
	if days > 0 {
		filter.Since = e.now().AddDate(0, 0, -days)
	}

	st, err := e.store.FeedbackStats(ctx, filter)
	if err != nil {
		return FeedbackSummary{}, err
	}
	entries, err := e.store.ListFeedback(ctx, filter)
	if err != nil {
		return FeedbackSummary{}, err
	}
	low, err := e.store.LowRatedFeedback(ctx, LowRatingThreshold, lowRatedLimit)
	if err != nil {
		return FeedbackSummary{}, err
	}

	var comments, missing []string
	for _, fb := range entries {
		if fb.Comment != "" {
			comments = append(comments, fb.Comment)
		}
		missing = append(missing, fb.MissingTopics...)
	}
	missing = cleanItems(missing)
	if len(missing) > commentSampleSize {
		missing = missing[:commentSampleSize]
	}

	return FeedbackSummary{
		FeedbackStats:          st,
		CommonComplaints:       sentencesWith(comments, complaintKeywords),
		CommonPraises:          sentencesWith(comments, praiseKeywords),
		ImprovementSuggestions: sentencesWith(comments, suggestionKeywords),
		MissingTopics:          missing,
		ByTopic:                topicRatings(entries),
		LowRated:               low,
	}, nil
}

// sentencesWith returns up to commentSampleSize distinct sentences that
// contain one of keywords, in the order the comments were given.
func sentencesWith(comments, keywords []string) []string {
	out := []string{}
	for _, c := range comments {
		sentences := strings.Split(c, ".")
		for _, kw := range keywords {
			for _, s := range sentences {
				if !strings.Contains(strings.ToLower(s), kw) {
					continue
				}
				if s = strings.TrimSpace(s); !slices.Contains(out, s) {
					out = append(out, s)
					if len(out) == commentSampleSize {
						return out
					}
				}
				break
			}
		}
	}
	return out
}

func topicRatings(entries []storage.Feedback) []TopicRating {
	sums := map[string]int{}
	counts := map[string]int{}
	for _, fb := range entries {
		for _, topic := range fb.DetectedTopics {
			sums[topic] += fb.Rating
			counts[topic]++
		}
	}
	out := make([]TopicRating, 0, len(counts))
	for topic, n := range counts {
		out = append(out, TopicRating{Topic: topic, Count: n, AverageRating: float64(sums[topic]) / float64(n)})
	}
	slices.SortFunc(out, func(a, b TopicRating) int { return strings.Compare(a.Topic, b.Topic) })
	return out
}

var feedbackCSVHeader = []string{
	"id", "ticket_id", "section", "rating", "comment", "user_id",
	"helpful_items", "unhelpful_items", "missing_topics",
	"ticket_title", "detected_topics", "created_at",
}

// ExportFeedback writes every feedback row to a timestamped file under
// exports/ and returns its path.
func (e *Engine) ExportFeedback(ctx context.Context, format ExportFormat) (string, error) {
	entries, err := e.store.ListFeedback(ctx, storage.FeedbackFilter{})
	if err != nil {
		return "", err
	}

	var data []byte
	switch format {
	case ExportJSON:
		data, err = json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding feedback export: %w", err)
		}
		data = append(data, '\n')
	case ExportCSV:
		var b strings.Builder
		w := csv.NewWriter(&b)
		w.Write(feedbackCSVHeader)
		for _, fb := range entries {
			w.Write([]string{
				fb.ID, fb.TicketID, fb.Section, strconv.Itoa(fb.Rating), fb.Comment, fb.UserID,
				strings.Join(fb.HelpfulItems, listSeparator),
				strings.Join(fb.UnhelpfulItems, listSeparator),
				strings.Join(fb.MissingTopics, listSeparator),
				fb.TicketTitle,
				strings.Join(fb.DetectedTopics, listSeparator),
				csvTime(fb.CreatedAt),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("encoding feedback export: %w", err)
		}
		data = []byte(b.String())
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}

	if err := os.MkdirAll(e.layout.ExportsDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("feedback_export_%s.%s", e.now().UTC().Format("20060102_150405"), format)
	path := filepath.Join(e.layout.ExportsDir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("writing feedback export: %w", err)
	}
	e.logger.Info("feedback export written", "path", path, "entries", len(entries))
	return path, nil
}
