// Package memory provides an in-process implementation of storage.Store.
// It offers the same atomicity and precondition semantics as the SQLite
// backend and is used by tests and zero-setup deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/divvyhq/divvy/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store is a mutex-guarded map of path to value.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns the value at path, or storage.ErrNotFound.
func (s *Store) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// List returns all entries under prefix, ordered by path.
func (s *Store) List(_ context.Context, prefix string) ([]storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []storage.Entry
	for path, value := range s.data {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		out := make([]byte, len(value))
		copy(out, value)
		entries = append(entries, storage.Entry{Path: path, Value: out})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// AtomicMultiUpdate verifies every precondition and applies every write
// under one lock acquisition.
func (s *Store) AtomicMultiUpdate(_ context.Context, writes []storage.Write, preconds []storage.Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pc := range preconds {
		current, ok := s.data[pc.Path]
		switch {
		case !ok && pc.Value != nil:
			return fmt.Errorf("%w: %s was deleted", storage.ErrConflict, pc.Path)
		case ok && pc.Value == nil:
			return fmt.Errorf("%w: %s was created", storage.ErrConflict, pc.Path)
		case ok && !bytes.Equal(current, pc.Value):
			return fmt.Errorf("%w: %s changed", storage.ErrConflict, pc.Path)
		}
	}

	for _, w := range writes {
		if w.Value == nil {
			delete(s.data, w.Path)
			continue
		}
		value := make([]byte, len(w.Value))
		copy(value, w.Value)
		s.data[w.Path] = value
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
