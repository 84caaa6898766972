package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"blockfrost-proxy/pkg/logging"
)

// debounceDelay coalesces the multiple write events an editor or a
// ConfigMap projection tends to emit for a single logical update.
const debounceDelay = 100 * time.Millisecond

// Watcher watches the cache-rules file for changes and reloads List on
// every settled change, generalizing the teacher's config.Watcher
// debounce-reload loop from a single YAML document to the TOML rules list.
type Watcher struct {
	path    string
	list    *List
	watcher *fsnotify.Watcher
	logger  *logging.Logger
}

// NewWatcher creates a rules watcher over path, loading it once synchronously
// so list is populated before Start is ever called.
func NewWatcher(path string, list *List, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Global()
	}

	rules, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading initial cache rules: %w", err)
	}
	list.Replace(rules)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating cache rules file watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching cache rules file: %w", err)
	}

	return &Watcher{path: path, list: list, watcher: fw, logger: logger}, nil
}

// Start blocks, reloading the rules list after each settled batch of file
// events, until ctx is cancelled. A reload failure is logged and the
// previous snapshot is kept in place.
func (w *Watcher) Start(ctx context.Context) error {
	debounceTimer := time.NewTimer(0)
	debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("cache rules watcher events channel closed")
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debounceTimer.Reset(debounceDelay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("cache rules watcher errors channel closed")
			}
			w.logger.Error("cache rules watcher error", "error", err)

		case <-debounceTimer.C:
			rules, err := LoadFile(w.path)
			if err != nil {
				w.logger.Error("cache rules reload failed, keeping previous list", "error", err)
				continue
			}
			w.list.Replace(rules)
			w.logger.Info("cache rules reloaded", "rules", len(rules))
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
