package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// Record is one key/value pair of the store
type Record struct {
	Key   string
	Value []byte
}

// RecordStore is a linear, key-ordered store of serialized records backed by
// SQLite. Cursors always walk records in ascending byte order of their keys.
type RecordStore struct {
	db   *sql.DB
	path string
}

// Open opens an existing record store. A missing file is an error rather
// than silently creating an empty dataset.
func Open(path string) (*RecordStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open record store %s: %w", path, err)
	}
	return open(path)
}

// Create opens a record store, creating the file and schema if needed.
func Create(path string) (*RecordStore, error) {
	return open(path)
}

func open(path string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise record store %s: %w", path, err)
	}
	return &RecordStore{db: db, path: path}, nil
}

// Path returns the file backing the store
func (s *RecordStore) Path() string {
	return s.path
}

// Close releases the underlying database handle
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a single record
func (s *RecordStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO records (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to put record %q: %w", key, err)
	}
	return nil
}

// PutBatch writes records in one transaction
func (s *RecordStore) PutBatch(ctx context.Context, records []Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO records (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.Key, r.Value); err != nil {
			return fmt.Errorf("failed to put record %q: %w", r.Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Get returns the value stored under key
func (s *RecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM records WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %q: %w", key, err)
	}
	return value, nil
}

// Count returns the number of records in the store
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Cursor starts a fresh scan from the first key
func (s *RecordStore) Cursor(ctx context.Context) (*Cursor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM records ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return &Cursor{rows: rows}, nil
}

// Cursor iterates records in key order. It follows the sql.Rows pattern:
// call Next until it returns false, then check Err.
type Cursor struct {
	rows    *sql.Rows
	current Record
	err     error
}

// Next advances to the next record
func (c *Cursor) Next() bool {
	if c.err != nil || c.rows == nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	var r Record
	if err := c.rows.Scan(&r.Key, &r.Value); err != nil {
		c.err = fmt.Errorf("failed to read record: %w", err)
		return false
	}
	c.current = r
	return true
}

// Record returns the record at the cursor
func (c *Cursor) Record() Record {
	return c.current
}

// Err returns the first error encountered while iterating
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. Stopping before the end is allowed.
func (c *Cursor) Close() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	return err
}
