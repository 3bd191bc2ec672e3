package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using an embedded SQLite database. It backs
// local runs and tests; production deployments use RedisStore.
type SQLiteStore struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite for concurrent access
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=2000&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		tbl TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (tbl, id)
	);

	CREATE INDEX IF NOT EXISTS idx_items_updated_at ON items(updated_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Put writes a single item, replacing any prior item under the same id
func (s *SQLiteStore) Put(ctx context.Context, table string, item Item) error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	id, err := ItemID(item)
	if err != nil {
		return err
	}

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %s: %w", id, err)
	}

	// Serialize writes to avoid SQLITE_BUSY from multiple concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.upsert(ctx, table, id, body)
	})
}

func (s *SQLiteStore) upsert(ctx context.Context, table, id string, body []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO items (tbl, id, body, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(tbl, id) DO UPDATE SET
		body = excluded.body,
		updated_at = excluded.updated_at
	`

	if _, err := tx.ExecContext(ctx, query, table, id, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to execute upsert: %w", err)
	}

	return tx.Commit()
}

// BatchWrite writes up to MaxBatchSize items; items that fail individually
// are returned as unprocessed.
func (s *SQLiteStore) BatchWrite(ctx context.Context, table string, items []Item) ([]Item, error) {
	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds store limit of %d", len(items), MaxBatchSize)
	}

	var unprocessed []Item
	for _, item := range items {
		if err := s.Put(ctx, table, item); err != nil {
			if ctx.Err() != nil {
				return unprocessed, ctx.Err()
			}
			unprocessed = append(unprocessed, item)
		}
	}
	return unprocessed, nil
}

// Get returns the item under key, or ErrNotFound
func (s *SQLiteStore) Get(ctx context.Context, table, key string) (Item, error) {
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM items WHERE tbl = ? AND id = ?`, table, key).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var item Item
	if err := json.Unmarshal([]byte(body), &item); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", key, err)
	}
	return item, nil
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if !isSQLiteBusyError(err) || attempt == maxRetries-1 {
			return err
		}

		// Exponential backoff plus a small jitter term to reduce contention
		delay := baseDelay * time.Duration(1<<uint(attempt))
		jitter := time.Duration(attempt*10) * time.Millisecond
		time.Sleep(delay + jitter)
	}

	return err
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
