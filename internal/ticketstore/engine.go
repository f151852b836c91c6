// Package ticketstore persists analyzed tickets to per-ticket files, the
// relational store, and the search index, and answers queries over them.
package ticketstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kalambet/ticketlens/internal/analysis"
	"github.com/kalambet/ticketlens/internal/report"
	"github.com/kalambet/ticketlens/internal/search"
	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
)

// ErrNotFound is returned for unknown ticket ids.
var ErrNotFound = storage.ErrNotFound

// Per-ticket file names.
const (
	TicketDataFile = "ticket_data.json"
	ReportFile     = "analysis_report.md"
	SummaryFile    = "summary.txt"
)

// DefaultSearchLimit applies when Search is called with limit <= 0 and no
// other default was configured.
const DefaultSearchLimit = 10

// Layout is the on-disk tree under <data_dir>/ticket_storage.
type Layout struct {
	Root        string
	DatabaseDir string
	IndexPath   string
	FilesDir    string
	ExportsDir  string
	BackupsDir  string
}

// NewLayout returns the layout rooted at dataDir/ticket_storage.
func NewLayout(dataDir string) Layout {
	root := filepath.Join(dataDir, "ticket_storage")
	db := filepath.Join(root, "database")
	return Layout{
		Root:        root,
		DatabaseDir: db,
		IndexPath:   filepath.Join(db, "search_index.cbor"),
		FilesDir:    filepath.Join(root, "files"),
		ExportsDir:  filepath.Join(root, "exports"),
		BackupsDir:  filepath.Join(root, "backups"),
	}
}

// TicketDir returns the directory holding the files of ticket id.
func (l Layout) TicketDir(id string) string {
	return filepath.Join(l.FilesDir, id)
}

// Uploader copies a finished backup archive somewhere off the machine.
type Uploader interface {
	Upload(ctx context.Context, key string, path string) (string, error)
}

// Engine fans every stored ticket out to files, SQLite, and the index. Writes
// are serialized; reads may run concurrently.
type Engine struct {
	layout      Layout
	store       *storage.Store
	index       *search.Index
	renderer    *report.Renderer
	uploader    Uploader
	searchLimit int
	now         func() time.Time
	logger      *slog.Logger
	writeMu     sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRenderer sets the renderer used for analysis_report.md and summary.txt.
func WithRenderer(r *report.Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithUploader enables off-site copies of backups.
func WithUploader(u Uploader) Option {
	return func(e *Engine) { e.uploader = u }
}

// WithSearchLimit sets the default result count for Search.
func WithSearchLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.searchLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Open creates the storage tree under dataDir if needed, opens the database,
// and loads the search index, rebuilding it when the cache is missing,
// corrupt, or out of step with the database.
func Open(ctx context.Context, dataDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		layout:      NewLayout(dataDir),
		searchLimit: DefaultSearchLimit,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.renderer == nil {
		e.renderer = report.NewRenderer(report.Options{})
	}

	for _, dir := range []string{e.layout.DatabaseDir, e.layout.FilesDir, e.layout.ExportsDir, e.layout.BackupsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	store, err := storage.Open(e.layout.DatabaseDir)
	if err != nil {
		return nil, err
	}
	e.store = store

	if err := e.loadIndex(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Layout returns the storage tree paths.
func (e *Engine) Layout() Layout {
	return e.layout
}

// Renderer returns the renderer used for stored reports.
func (e *Engine) Renderer() *report.Renderer {
	return e.renderer
}

// Database returns the relational store, for the job queue.
func (e *Engine) Database() *storage.Store {
	return e.store
}

// ResolveID returns the storage id for t: the sanitized key when present,
// otherwise a content-derived manual id.
func ResolveID(t ticket.Ticket) string {
	if t.ID == "" {
		return ticket.ManualID(t.Title, t.Description)
	}
	return ticket.SanitizeID(t.ID)
}

// Store persists t and r. A non-zero duration overrides the one recorded in
// r's metadata. Storing an id that already exists replaces it entirely.
func (e *Engine) Store(ctx context.Context, t ticket.Ticket, r analysis.Result, duration time.Duration) (string, error) {
	t.ID = ResolveID(t)
	if duration > 0 {
		r.Metadata.Duration = duration
	}
	rec := storage.TicketRecord{
		Ticket:   t,
		Result:   r,
		StoredAt: e.now().UTC().Truncate(time.Second),
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.writeFiles(rec); err != nil {
		return "", fmt.Errorf("writing ticket files: %w", err)
	}
	if err := e.store.SaveTicket(ctx, rec); err != nil {
		return "", fmt.Errorf("saving ticket rows: %w", err)
	}
	e.index.Add(indexDocument(rec))
	if err := e.index.Save(e.layout.IndexPath); err != nil {
		return "", fmt.Errorf("updating search index: %w", err)
	}

	e.logger.Debug("ticket stored", "id", t.ID, "questions", r.QuestionCount(), "test_cases", r.TestCaseCount())
	return t.ID, nil
}

func (e *Engine) writeFiles(rec storage.TicketRecord) error {
	dir := e.layout.TicketDir(rec.Ticket.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", TicketDataFile, err)
	}
	doc := report.Document{Ticket: rec.Ticket, Result: rec.Result}
	summary, err := e.renderer.Text(doc)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{TicketDataFile, append(data, '\n')},
		{ReportFile, []byte(e.renderer.Markdown(doc))},
		{SummaryFile, []byte(summary)},
	}
	for _, f := range files {
		if err := writeFileAtomic(filepath.Join(dir, f.name), f.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Get returns the stored ticket and analysis. It reads ticket_data.json and
// falls back to the relational rows when the file is gone.
func (e *Engine) Get(ctx context.Context, id string) (storage.TicketRecord, error) {
	id = ticket.SanitizeID(id)
	data, err := os.ReadFile(filepath.Join(e.layout.TicketDir(id), TicketDataFile))
	switch {
	case err == nil:
		var rec storage.TicketRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			e.logger.Warn("unreadable ticket file, using database rows", "id", id, "error", err)
			break
		}
		return rec, nil
	case !errors.Is(err, fs.ErrNotExist):
		e.logger.Warn("reading ticket file failed, using database rows", "id", id, "error", err)
	}
	return e.store.GetRecord(ctx, id)
}

// Report renders the stored analysis of id in format.
func (e *Engine) Report(ctx context.Context, id string, format report.Format) (string, error) {
	rec, err := e.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return e.renderer.Render(report.Document{Ticket: rec.Ticket, Result: rec.Result}, format)
}

// List returns stored tickets newest first.
func (e *Engine) List(ctx context.Context, limit, offset int) ([]storage.TicketSummary, error) {
	return e.store.ListTickets(ctx, limit, offset)
}

// Recent returns tickets created within the last days days.
func (e *Engine) Recent(ctx context.Context, days int) ([]storage.TicketSummary, error) {
	if days <= 0 {
		days = 7
	}
	return e.store.RecentTickets(ctx, e.now().AddDate(0, 0, -days))
}

// Timeline counts tickets per creation day. days <= 0 covers all history.
func (e *Engine) Timeline(ctx context.Context, days int) ([]storage.DayCount, error) {
	var since time.Time
	if days > 0 {
		y, m, d := e.now().UTC().AddDate(0, 0, -days+1).Date()
		since = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return e.store.Timeline(ctx, since)
}

// Delete removes a ticket from every store.
func (e *Engine) Delete(ctx context.Context, id string) error {
	id = ticket.SanitizeID(id)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.store.DeleteTicket(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(e.layout.TicketDir(id)); err != nil {
		return fmt.Errorf("removing ticket files: %w", err)
	}
	e.index.Remove(id)
	if err := e.index.Save(e.layout.IndexPath); err != nil {
		return fmt.Errorf("updating search index: %w", err)
	}
	return nil
}

// DeleteAll removes every stored ticket and returns how many were removed.
// Exports and backups are kept.
func (e *Engine) DeleteAll(ctx context.Context) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	n, err := e.store.DeleteAllTickets(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(e.layout.FilesDir); err != nil {
		return n, fmt.Errorf("removing ticket files: %w", err)
	}
	if err := os.MkdirAll(e.layout.FilesDir, 0o755); err != nil {
		return n, err
	}
	e.index.Reset(nil)
	if err := e.index.Save(e.layout.IndexPath); err != nil {
		return n, fmt.Errorf("updating search index: %w", err)
	}
	return n, nil
}

func indexDocument(rec storage.TicketRecord) search.Document {
	return search.Document{
		ID:          rec.Ticket.ID,
		Title:       rec.Ticket.Title,
		Description: rec.Ticket.Description,
		Labels:      rec.Ticket.Labels,
		Questions:   rec.Result.AllQuestions(),
		CreatedAt:   rec.Ticket.CreatedAt,
		StoredAt:    rec.StoredAt,
	}
}
