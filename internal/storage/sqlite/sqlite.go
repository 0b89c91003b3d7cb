// Package sqlite provides a SQLite-backed implementation of storage.Store.
// Every path/value pair lives in a single kv table; AtomicMultiUpdate maps
// directly onto a SQL transaction, which gives the all-or-nothing multi-key
// commit and precondition checks the ledger relies on.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/divvyhq/divvy/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    path  TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
`

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path. It creates the
// parent directories and the schema automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialized writes; SQLite only allows one writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the value at path, or storage.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE path = ?", path,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return value, nil
}

// List returns all entries under prefix, ordered by path.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]storage.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, value FROM kv WHERE path >= ? AND path < ? ORDER BY path",
		prefix, prefix+"\xff",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.Path, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// AtomicMultiUpdate verifies every precondition and applies every write
// inside one transaction.
func (s *SQLiteStore) AtomicMultiUpdate(ctx context.Context, writes []storage.Write, preconds []storage.Precondition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pc := range preconds {
		var current []byte
		err := tx.QueryRowContext(ctx,
			"SELECT value FROM kv WHERE path = ?", pc.Path,
		).Scan(&current)
		switch {
		case err == sql.ErrNoRows:
			if pc.Value != nil {
				return fmt.Errorf("%w: %s was deleted", storage.ErrConflict, pc.Path)
			}
		case err != nil:
			return fmt.Errorf("failed to check precondition on %s: %w", pc.Path, err)
		case pc.Value == nil:
			return fmt.Errorf("%w: %s was created", storage.ErrConflict, pc.Path)
		case !bytes.Equal(current, pc.Value):
			return fmt.Errorf("%w: %s changed", storage.ErrConflict, pc.Path)
		}
	}

	for _, w := range writes {
		if w.Value == nil {
			if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE path = ?", w.Path); err != nil {
				return fmt.Errorf("failed to delete %s: %w", w.Path, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (path, value) VALUES (?, ?)
			 ON CONFLICT(path) DO UPDATE SET value = excluded.value`,
			w.Path, w.Value,
		)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", w.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
