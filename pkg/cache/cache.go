// Package cache implements the persistent, transactional response cache:
// a bbolt-backed key -> (meta, body) store with LRU eviction against a byte
// budget, faithful to the predecessor's redb-backed storage (meta_header,
// meta_trailer, body) tuple shape, seek/range-read semantics on hit, and
// soft-degrade-to-miss on read-path failures paired with hard failure
// propagation on writes.
package cache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"blockfrost-proxy/pkg/logging"
)

var bucketName = []byte("cache")

// Meta is the cacheable portion of a response's identity: status and
// headers. It is serialized separately from Timing, mirroring the
// predecessor's two-part meta split.
type Meta struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
}

// Timing is the cache lifecycle metadata for an entry.
type Timing struct {
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry as of now.
func (t Timing) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// record is the on-disk envelope for one cache entry, gob-encoded as the
// bucket value.
type record struct {
	MetaHeader  []byte
	MetaTrailer []byte
	Body        []byte
}

// indexEntry is the in-memory bookkeeping used for LRU eviction against the
// configured byte budget. bbolt itself has no notion of access recency, so
// it is tracked alongside the durable store and rebuilt from it at startup.
type indexEntry struct {
	size       int64
	lastAccess time.Time
}

// Cache is the persistent response cache.
type Cache struct {
	db           *bbolt.DB
	maxSizeBytes int64
	logger       *logging.Logger

	mu         sync.Mutex
	index      map[string]indexEntry
	totalBytes int64
}

// Open opens (creating if absent) the bbolt database at path and rebuilds
// the in-memory LRU index from its existing contents.
func Open(path string, maxSizeBytes int64, logger *logging.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.Global()
	}
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database %s: %w", path, err)
	}

	c := &Cache{db: db, maxSizeBytes: maxSizeBytes, logger: logger, index: make(map[string]indexEntry)}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		now := time.Now()
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if decErr := gobDecode(v, &rec); decErr != nil {
				return nil // corrupt entry, skip it; purged lazily on next write collision
			}
			c.index[string(k)] = indexEntry{size: int64(len(rec.Body)), lastAccess: now}
			c.totalBytes += int64(len(rec.Body))
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuilding cache index for %s: %w", path, err)
	}

	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SupportStreamingPartialWrite reports whether partially-written entries may
// be served to concurrent readers before Finish completes. This
// implementation buffers the whole body before committing, so it does not.
func (c *Cache) SupportStreamingPartialWrite() bool {
	return false
}

// Lookup retrieves an entry by key. Any read-path failure (corrupt
// transaction, undecodable record) degrades to a miss rather than
// propagating an error, matching the predecessor's warn-and-miss behavior.
func (c *Cache) Lookup(key string) (Meta, Timing, *HitHandle, bool) {
	var rec record
	found := false

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return gobDecode(v, &rec)
	})
	if err != nil {
		c.logger.Warn("cache lookup degraded to miss", "error", err)
		return Meta{}, Timing{}, nil, false
	}
	if !found {
		return Meta{}, Timing{}, nil, false
	}

	var meta Meta
	var timing Timing
	if err := json.Unmarshal(rec.MetaHeader, &meta); err != nil {
		c.logger.Warn("cache meta decode failed, degraded to miss", "error", err)
		return Meta{}, Timing{}, nil, false
	}
	if err := json.Unmarshal(rec.MetaTrailer, &timing); err != nil {
		c.logger.Warn("cache timing decode failed, degraded to miss", "error", err)
		return Meta{}, Timing{}, nil, false
	}

	c.touch(key, int64(len(rec.Body)))
	return meta, timing, newHitHandle(rec.Body), true
}

// Purge removes an entry. Unlike Lookup, failures here propagate: a purge
// that silently no-ops would leave stale data being served.
func (c *Cache) Purge(key string) (bool, error) {
	var existed bool
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get([]byte(key))
		existed = v != nil
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("purging cache key: %w", err)
	}
	c.mu.Lock()
	if e, ok := c.index[key]; ok {
		c.totalBytes -= e.size
		delete(c.index, key)
	}
	c.mu.Unlock()
	return existed, nil
}

// UpdateMeta rewrites the meta/timing of an existing entry without touching
// its body, used to refresh TTL on revalidation. It is an error to update
// meta for a key with no existing body.
func (c *Cache) UpdateMeta(key string, meta Meta, timing Timing) (bool, error) {
	metaHeader, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("encoding cache meta: %w", err)
	}
	metaTrailer, err := json.Marshal(timing)
	if err != nil {
		return false, fmt.Errorf("encoding cache timing: %w", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("no cache entry for key")
		}
		var rec record
		if err := gobDecode(v, &rec); err != nil {
			return fmt.Errorf("decoding existing cache entry: %w", err)
		}
		rec.MetaHeader = metaHeader
		rec.MetaTrailer = metaTrailer
		encoded, err := gobEncode(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), encoded)
	})
	if err != nil {
		return false, fmt.Errorf("updating cache meta: %w", err)
	}
	return true, nil
}

func (c *Cache) touch(key string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[key] = indexEntry{size: size, lastAccess: time.Now()}
}

// commit writes a fully-assembled entry and evicts the least-recently-used
// entries until the cache is back under its byte budget. Write and commit
// failures propagate rather than degrading, since a silently-dropped write
// would make cache state diverge from what the request pipeline assumes it
// stored.
func (c *Cache) commit(key string, meta Meta, timing Timing, body []byte) (int, error) {
	metaHeader, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("encoding cache meta: %w", err)
	}
	metaTrailer, err := json.Marshal(timing)
	if err != nil {
		return 0, fmt.Errorf("encoding cache timing: %w", err)
	}
	encoded, err := gobEncode(record{MetaHeader: metaHeader, MetaTrailer: metaTrailer, Body: body})
	if err != nil {
		return 0, fmt.Errorf("encoding cache record: %w", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put([]byte(key), encoded)
	})
	if err != nil {
		return 0, fmt.Errorf("committing cache entry: %w", err)
	}

	c.mu.Lock()
	if old, ok := c.index[key]; ok {
		c.totalBytes -= old.size
	}
	c.index[key] = indexEntry{size: int64(len(body)), lastAccess: time.Now()}
	c.totalBytes += int64(len(body))
	c.mu.Unlock()

	c.evictIfOverBudget()
	return len(body), nil
}

func (c *Cache) evictIfOverBudget() {
	if c.maxSizeBytes <= 0 {
		return
	}
	for {
		c.mu.Lock()
		if c.totalBytes <= c.maxSizeBytes || len(c.index) == 0 {
			c.mu.Unlock()
			return
		}
		var oldestKey string
		var oldestTime time.Time
		first := true
		for k, e := range c.index {
			if first || e.lastAccess.Before(oldestTime) {
				oldestKey = k
				oldestTime = e.lastAccess
				first = false
			}
		}
		c.mu.Unlock()

		if _, err := c.Purge(oldestKey); err != nil {
			c.logger.Error("cache eviction purge failed", "error", err)
			return
		}
		c.logger.Debug("evicted cache entry over budget", "key", oldestKey)
	}
}

func gobEncode(rec record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, rec *record) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(rec)
}
