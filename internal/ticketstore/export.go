package ticketstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/storage"
)

// ExportFormat selects the export file type.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat validates an export format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return ExportJSON, nil
	case ExportJSON, ExportCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
	}
}

// listSeparator joins list fields inside one CSV cell.
const listSeparator = "; "

var csvHeader = []string{
	"id", "title", "description", "priority", "assignee", "reporter",
	"created_at", "updated_at", "stored_at",
	"labels", "components", "categories", "figma_links",
	"question_count", "test_case_count", "risk_count",
	"questions", "test_cases", "risk_areas", "technical_considerations", "clarifications_needed",
}

// Export writes every stored ticket to a timestamped file under exports/ and
// returns its path.
func (e *Engine) Export(ctx context.Context, format ExportFormat) (string, error) {
	ids, err := e.store.TicketIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("listing tickets: %w", err)
	}
	records := make([]storage.TicketRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := e.store.GetRecord(ctx, id)
		if err != nil {
			return "", fmt.Errorf("reading ticket %s: %w", id, err)
		}
		records = append(records, rec)
	}

	if err := os.MkdirAll(e.layout.ExportsDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("tickets_export_%s.%s", e.now().UTC().Format("20060102_150405"), format)
	path := filepath.Join(e.layout.ExportsDir, name)

	var data []byte
	switch format {
	case ExportJSON:
		data, err = json.MarshalIndent(records, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding export: %w", err)
		}
		data = append(data, '\n')
	case ExportCSV:
		var b strings.Builder
		if err := writeCSV(&b, records); err != nil {
			return "", fmt.Errorf("encoding export: %w", err)
		}
		data = []byte(b.String())
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	e.logger.Info("export written", "path", path, "tickets", len(records))
	return path, nil
}

func writeCSV(b *strings.Builder, records []storage.TicketRecord) error {
	w := csv.NewWriter(b)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		t, r := rec.Ticket, rec.Result
		categories := make([]string, len(r.Categories))
		for i, c := range r.Categories {
			categories[i] = string(c)
		}
		var tests []string
		for _, c := range analysis.TestCategories {
			tests = append(tests, r.TestCases[c]...)
		}
		row := []string{
			t.ID, t.Title, t.Description, string(t.Priority), t.Assignee, t.Reporter,
			csvTime(t.CreatedAt), csvTime(t.UpdatedAt), csvTime(rec.StoredAt),
			strings.Join(t.Labels, listSeparator),
			strings.Join(t.Components, listSeparator),
			strings.Join(categories, listSeparator),
			strings.Join(t.FigmaLinks, listSeparator),
			strconv.Itoa(r.QuestionCount()),
			strconv.Itoa(r.TestCaseCount()),
			strconv.Itoa(len(r.RiskAreas)),
			strings.Join(r.AllQuestions(), listSeparator),
			strings.Join(tests, listSeparator),
			strings.Join(r.RiskAreas, listSeparator),
			strings.Join(r.TechnicalConsiderations, listSeparator),
			strings.Join(r.ClarificationsNeeded, listSeparator),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
