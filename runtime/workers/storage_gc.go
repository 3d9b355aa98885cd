package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// StorageGC periodically reclaims badger value-log space. Soft deletes
// and presence flips rewrite rows, so the value log grows even though
// the logical data set barely does.
type StorageGC struct {
	db       *badger.DB
	interval time.Duration
	log      *slog.Logger
}

func NewStorageGC(db *badger.DB, interval time.Duration, log *slog.Logger) *StorageGC {
	return &StorageGC{db: db, interval: interval, log: log}
}

func (w *StorageGC) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// One call rewrites at most one value-log file; loop until
			// there is nothing left worth rewriting.
			for {
				if err := w.db.RunValueLogGC(0.5); err != nil {
					if err != badger.ErrNoRewrite {
						w.log.Warn("Value log GC failed", "error", err)
					}
					break
				}
			}
		}
	}
}
