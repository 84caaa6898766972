package tier

import (
	"context"
	"os"
	"time"

	"blockfrost-proxy/pkg/logging"
)

// Watcher polls the tiers file on a fixed interval and replaces Table on
// every observed modification. The original deployment polls its tier
// background service rather than watching the filesystem event stream, so
// this mirrors that interval-poll shape instead of the fsnotify-debounce
// shape used for cache rules.
type Watcher struct {
	path     string
	interval time.Duration
	table    *Table
	logger   *logging.Logger

	lastModTime time.Time
}

// NewWatcher builds a tier-table watcher over the file at path, polling every
// interval.
func NewWatcher(path string, interval time.Duration, table *Table, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Global()
	}
	return &Watcher{path: path, interval: interval, table: table, logger: logger}
}

// LoadOnce performs a single synchronous load, used at startup so the table
// is populated before the pipeline starts serving traffic.
func (w *Watcher) LoadOnce() error {
	tiers, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.table.Replace(tiers)
	if info, statErr := os.Stat(w.path); statErr == nil {
		w.lastModTime = info.ModTime()
	}
	return nil
}

// Start blocks, reloading the tiers file whenever its mtime advances, until
// ctx is cancelled. Reload errors are logged and the previous table snapshot
// is kept in place, consistent with the fail-static behavior of the cache
// rules watcher.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				w.logger.Warn("tier file stat failed", "error", err)
				continue
			}
			if !info.ModTime().After(w.lastModTime) {
				continue
			}
			tiers, err := LoadFile(w.path)
			if err != nil {
				w.logger.Error("tier file reload failed, keeping previous table", "error", err)
				continue
			}
			w.table.Replace(tiers)
			w.lastModTime = info.ModTime()
			w.logger.Info("tier table reloaded", "tiers", len(tiers))
		}
	}
}
