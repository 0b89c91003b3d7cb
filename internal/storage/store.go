// Package storage defines the abstract key-value store the ledger engine is
// written against: point reads plus atomic multi-key writes guarded by
// compare-and-swap preconditions. Backends (SQLite, in-memory) are swappable
// without touching the engine.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no value exists at the path.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned by AtomicMultiUpdate when a precondition does
	// not hold. The caller re-reads and retries the whole operation.
	ErrConflict = errors.New("storage: precondition conflict")
)

// Write is one key mutation. A nil Value deletes the path.
type Write struct {
	Path  string
	Value []byte
}

// Precondition asserts the current value at a path. A nil Value asserts the
// path is absent. Preconditions turn read-modify-write sequences into
// compare-and-swap: two concurrent ledger operations against the same group
// cannot both commit from the same stale snapshot.
type Precondition struct {
	Path  string
	Value []byte
}

// Entry is a path/value pair returned by List.
type Entry struct {
	Path  string
	Value []byte
}

// Store is the persistence contract consumed by the engine.
type Store interface {
	// Get returns the value at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)

	// List returns all entries whose path starts with prefix, ordered by
	// path ascending.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// AtomicMultiUpdate applies all writes as one transaction, after
	// verifying every precondition. Either everything commits or nothing
	// does; a failed precondition yields ErrConflict.
	AtomicMultiUpdate(ctx context.Context, writes []Write, preconds []Precondition) error

	// Close releases any resources held by the store.
	Close() error
}
