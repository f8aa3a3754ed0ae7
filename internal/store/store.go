// Package store provides SQLite-backed key-value persistence. It backs the
// response cache so cached explanations and diagrams survive restarts.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/julianshen/repolens/internal/cache"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding a single key-value table.
type Store struct {
	db       *sql.DB
	maxItems int
}

// Option customizes a Store.
type Option func(*Store)

// WithMaxItems bounds the number of stored keys. Writes of new keys past
// the bound fail with cache.ErrQuotaExceeded.
func WithMaxItems(n int) Option {
	return func(s *Store) {
		s.maxItems = n
	}
}

// NewStore opens (or creates) a SQLite database at dbPath and ensures
// the table exists. Use ":memory:" for an in-memory database.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

// GetItem returns the value stored under key.
func (s *Store) GetItem(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item: %w", err)
	}
	return value, true, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *Store) SetItem(key, value string) error {
	if s.maxItems > 0 {
		var count int
		err := s.db.QueryRow(
			`SELECT COUNT(*) FROM kv WHERE key != ?`, key,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count items: %w", err)
		}
		if count >= s.maxItems {
			return cache.ErrQuotaExceeded
		}
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO kv (key, value, updated_at)
		 VALUES (?, ?, datetime('now'))`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set item: %w", err)
	}
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (s *Store) RemoveItem(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

// Keys lists the keys starting with prefix, sorted.
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clear removes every key starting with prefix and returns the count.
func (s *Store) Clear(prefix string) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM kv WHERE substr(key, 1, ?) = ?`,
		len(prefix), prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	return res.RowsAffected()
}
