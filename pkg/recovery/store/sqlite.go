package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// schema is applied in order; PRAGMA user_version records how many
// steps a database file has seen.
var schema = []string{
	`CREATE TABLE kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_ms INTEGER NOT NULL
	) WITHOUT ROWID`,
}

// SQLiteStore keeps values in a single SQLite file, so stashed designs
// and restoration flags survive a reload of the application.
type SQLiteStore struct {
	db        *sql.DB
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens or creates the database at path. ":memory:" gives
// a private database that lives as long as the store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: ":memory:" stays a single database and writers queue.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return err
	}
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	for i := version; i < len(schema); i++ {
		if _, err := db.Exec(schema[i]); err != nil {
			return fmt.Errorf("schema step %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) check() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// row runs a single-value query, mapping no rows to ErrNotFound.
func (s *SQLiteStore) row(ctx context.Context, op, key, query string) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%s %s: %w", op, key, err)
	}
	return data, nil
}

func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.row(ctx, "get", key, `SELECT value FROM kv WHERE key = ?`)
}

// Take deletes key and returns its value in one statement.
func (s *SQLiteStore) Take(ctx context.Context, key string) ([]byte, error) {
	return s.row(ctx, "take", key, `DELETE FROM kv WHERE key = ? RETURNING value`)
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.exec(ctx, "set "+key, `
		INSERT INTO kv (key, value, updated_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ms = excluded.updated_ms`,
		key, value, time.Now().UnixMilli())
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	return s.exec(ctx, "remove "+key, `DELETE FROM kv WHERE key = ?`, key)
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.exec(ctx, "clear", `DELETE FROM kv`)
}

// Keys lists the keys under prefix as a half-open range scan.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	query, args := `SELECT key FROM kv WHERE key >= ? ORDER BY key`, []any{prefix}
	if end, ok := prefixEnd(prefix); ok {
		query, args = `SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key`, []any{prefix, end}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// prefixEnd returns the smallest string greater than every string that
// starts with prefix. ok is false when there is none.
func prefixEnd(prefix string) (end string, ok bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// Close closes the database. Later calls return the first result.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
