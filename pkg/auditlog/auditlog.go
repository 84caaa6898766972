// Package auditlog implements the optional, buffered, sqlite-backed request
// audit trail: a background flush worker batches completed-request records
// so logging them never blocks the request pipeline, the same shape as the
// teacher's SQLite query-log storage.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"blockfrost-proxy/pkg/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	namespace TEXT NOT NULL,
	port TEXT NOT NULL,
	tier TEXT NOT NULL,
	network TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	cache_status TEXT NOT NULL,
	upstream TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_namespace ON requests(namespace);
CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests(timestamp);
`

// Record is one completed request, logged asynchronously after the response
// has been written to the client.
type Record struct {
	Timestamp   time.Time
	Namespace   string
	Port        string
	Tier        string
	Network     string
	Method      string
	Path        string
	StatusCode  int
	DurationMs  int64
	CacheStatus string
	Upstream    string
}

const (
	defaultBufferSize    = 1000
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
)

// Log is the buffered sqlite audit log.
type Log struct {
	db     *sql.DB
	logger *logging.Logger

	buffer        chan Record
	flushInterval time.Duration
	batchSize     int

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	stmtInsert *sql.Stmt
}

// Open opens (creating if absent) the sqlite database at path and starts the
// background flush worker.
func Open(path string, logger *logging.Logger) (*Log, error) {
	if logger == nil {
		logger = logging.Global()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying audit log schema: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT INTO requests
		(timestamp, namespace, port, tier, network, method, path, status_code, duration_ms, cache_status, upstream)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing audit log insert statement: %w", err)
	}

	l := &Log{
		db:            db,
		logger:        logger,
		buffer:        make(chan Record, defaultBufferSize),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
		stmtInsert:    stmt,
	}

	l.wg.Add(1)
	go l.flushWorker()

	return l, nil
}

// Append enqueues a record for asynchronous persistence. A full buffer drops
// the record rather than blocking the caller, since the request pipeline
// must not stall on audit logging.
func (l *Log) Append(record Record) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	select {
	case l.buffer <- record:
	default:
		l.logger.Warn("audit log buffer full, dropping record", "path", record.Path)
	}
}

func (l *Log) flushWorker() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, l.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.flushBatch(batch); err != nil {
			l.logger.Error("audit log flush failed", "error", err, "batch_size", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-l.buffer:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Log) flushBatch(records []Record) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning audit log transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := tx.Stmt(l.stmtInsert)
	for _, r := range records {
		_, err := stmt.Exec(r.Timestamp, r.Namespace, r.Port, r.Tier, r.Network,
			r.Method, r.Path, r.StatusCode, r.DurationMs, r.CacheStatus, r.Upstream)
		if err != nil {
			return fmt.Errorf("inserting audit log record: %w", err)
		}
	}
	return tx.Commit()
}

// CountSince returns the number of requests logged at or after since, used
// by tests and operational tooling rather than by the request pipeline
// itself.
func (l *Log) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests WHERE timestamp >= ?", since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting audit log records: %w", err)
	}
	return count, nil
}

// Close stops the flush worker, flushing any buffered records, then closes
// the database.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.buffer)
	l.wg.Wait()

	if l.stmtInsert != nil {
		_ = l.stmtInsert.Close()
	}
	return l.db.Close()
}
