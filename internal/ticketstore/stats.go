package ticketstore

import (
	"context"
	"io/fs"
	"math"
	"path/filepath"

	"github.com/kalambet/ticketlens/internal/storage"
)

// Statistics extends the relational aggregates with on-disk figures.
type Statistics struct {
	storage.Stats
	IndexedTickets int     `json:"indexed_tickets"`
	StorageSizeMB  float64 `json:"storage_size_mb"`
}

// Statistics returns aggregate counts over everything stored.
func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	st, err := e.store.Statistics(ctx)
	if err != nil {
		return Statistics{}, err
	}
	size, err := dirSize(e.layout.Root)
	if err != nil {
		e.logger.Warn("measuring storage size failed", "error", err)
	}
	return Statistics{
		Stats:          st,
		IndexedTickets: e.index.Len(),
		StorageSizeMB:  math.Round(float64(size)/(1024*1024)*100) / 100,
	}, nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
