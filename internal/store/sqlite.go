package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Adapter[any] = (*SQLite[any])(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	entity     TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (entity, key)
)`

// SQLiteDB is a SQLite database shared by every SQLite adapter of a process.
type SQLiteDB struct {
	db *sql.DB

	initOnce sync.Once
	initErr  error
}

// OpenSQLite opens (or creates) a SQLite database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) migrate(ctx context.Context) error {
	s.initOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			s.initErr = fmt.Errorf("enabling WAL: %w", err)
			return
		}
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			s.initErr = fmt.Errorf("creating kv_store: %w", err)
		}
	})
	return s.initErr
}

// SQLite stores one entity kind as JSON rows of the kv_store table.
type SQLite[T any] struct {
	db     *SQLiteDB
	entity string
}

// NewSQLite creates an adapter for entity on db.
func NewSQLite[T any](db *SQLiteDB, entity string) *SQLite[T] {
	return &SQLite[T]{db: db, entity: entity}
}

// WaitForInit creates the kv_store table.
func (s *SQLite[T]) WaitForInit(ctx context.Context) error {
	return s.db.migrate(ctx)
}

// HasValue reports whether a row exists for key.
func (s *SQLite[T]) HasValue(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM kv_store WHERE entity = ? AND key = ?`,
		s.entity, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking %s/%s: %w", s.entity, key, err)
	}
	return n > 0, nil
}

// ReadValue decodes the row for key.
func (s *SQLite[T]) ReadValue(ctx context.Context, key string) (T, error) {
	var value T
	var raw string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE entity = ? AND key = ?`,
		s.entity, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return value, fmt.Errorf("reading %s/%s: %w", s.entity, key, ErrNotFound)
	}
	if err != nil {
		return value, fmt.Errorf("reading %s/%s: %w", s.entity, key, err)
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, fmt.Errorf("decoding %s/%s: %w", s.entity, key, err)
	}
	return value, nil
}

// WriteValue upserts the row for key in a single statement.
func (s *SQLite[T]) WriteValue(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", s.entity, key, err)
	}
	return s.upsert(ctx, key, string(data))
}

// DeleteValue replaces the row with a null tombstone.
func (s *SQLite[T]) DeleteValue(ctx context.Context, key string) error {
	return s.upsert(ctx, key, "null")
}

func (s *SQLite[T]) upsert(ctx context.Context, key, raw string) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO kv_store (entity, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity, key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`,
		s.entity, key, raw, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", s.entity, key, err)
	}
	return nil
}
