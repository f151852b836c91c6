package ticketstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/kalambet/ticketlens/internal/search"
	"github.com/kalambet/ticketlens/internal/storage"
)

// loadIndex reads the index cache, falling back to a rebuild from the
// database when the cache cannot be used.
func (e *Engine) loadIndex(ctx context.Context) error {
	idx, err := search.Load(e.layout.IndexPath)
	switch {
	case err == nil:
		stored, err := e.store.StoredStamps(ctx)
		if err != nil {
			return fmt.Errorf("reading ticket versions: %w", err)
		}
		stale := staleEntries(idx.Stamps(), stored)
		if stale == 0 {
			e.index = idx
			return nil
		}
		e.logger.Warn("search index out of date, rebuilding", "indexed", idx.Len(), "stored", len(stored), "stale", stale)
	case errors.Is(err, fs.ErrNotExist):
		e.logger.Debug("no search index cache, building")
	default:
		e.logger.Warn("search index cache unusable, rebuilding", "path", e.layout.IndexPath, "error", err)
	}

	e.index = search.New()
	_, err = e.rebuild(ctx)
	return err
}

// staleEntries counts ids whose cached version differs from the stored one,
// including ids present on only one side.
func staleEntries(cached, stored map[string]time.Time) int {
	n := 0
	for id, at := range stored {
		if c, ok := cached[id]; !ok || !c.Equal(at) {
			n++
		}
	}
	for id := range cached {
		if _, ok := stored[id]; !ok {
			n++
		}
	}
	return n
}

// Reindex rebuilds the search index from the database and rewrites the cache.
// It returns the number of indexed tickets.
func (e *Engine) Reindex(ctx context.Context) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.rebuild(ctx)
}

func (e *Engine) rebuild(ctx context.Context) (int, error) {
	docs, err := e.store.IndexDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading index documents: %w", err)
	}
	e.index.Reset(docs)
	if err := e.index.Save(e.layout.IndexPath); err != nil {
		return 0, fmt.Errorf("updating search index: %w", err)
	}
	return len(docs), nil
}

// Search returns tickets matching every token of query, newest first.
// limit <= 0 uses the configured default.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]storage.TicketSummary, error) {
	if limit <= 0 {
		limit = e.searchLimit
	}
	ids := e.index.Search(query, 0)
	if len(ids) == 0 {
		return []storage.TicketSummary{}, nil
	}
	hits, err := e.store.Summaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading search results: %w", err)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
