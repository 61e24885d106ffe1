// Package memstore is an in-memory [reportstore.Store].
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/editscore/internal/reportstore"
)

var _ reportstore.Store = (*Store)(nil)

// Store keeps runs in a map for the lifetime of the process.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*reportstore.Run
}

// New returns an empty [Store].
func New() *Store {
	return &Store{runs: make(map[string]*reportstore.Run)}
}

// SaveRun implements [reportstore.Store].
func (s *Store) SaveRun(_ context.Context, run *reportstore.Run) error {
	if run == nil || run.ID == "" {
		return errors.New("memstore: run without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("memstore: run %q already exists", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// Run implements [reportstore.Store].
func (s *Store) Run(_ context.Context, id string) (*reportstore.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("memstore: run %q: %w", id, reportstore.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
