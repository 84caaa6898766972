package cache

import (
	"fmt"
	"sync"
)

// WriteHandle assembles a new cache entry body incrementally as it streams
// from upstream, then commits it to bbolt as a single atomic write on
// Finish. Body bytes are buffered entirely before being durably stored,
// which is why SupportStreamingPartialWrite is false: a concurrent reader
// can never observe a partial entry.
type WriteHandle struct {
	mu       sync.Mutex
	cache    *Cache
	key      string
	meta     Meta
	timing   Timing
	body     []byte
	complete bool
}

func newWriteHandle(c *Cache, key string, meta Meta, timing Timing) *WriteHandle {
	return &WriteHandle{cache: c, key: key, meta: meta, timing: timing}
}

// WriteBody appends data to the in-progress body. Writing after eof has
// already been signalled is an error instead of the predecessor's panic.
func (w *WriteHandle) WriteBody(data []byte, eof bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.complete {
		return fmt.Errorf("cache write handle already reached eof")
	}
	w.body = append(w.body, data...)
	if eof {
		w.complete = true
	}
	return nil
}

// Finish commits the assembled entry to the cache and returns its size.
func (w *WriteHandle) Finish() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.commit(w.key, w.meta, w.timing, w.body)
}

// NewWriteHandle starts a miss handler for key, to be filled by WriteBody
// calls and committed by Finish.
func (c *Cache) NewWriteHandle(key string, meta Meta, timing Timing) *WriteHandle {
	return newWriteHandle(c, key, meta, timing)
}
