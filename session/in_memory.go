package session

import (
	"context"
	"sort"
	"sync"

	"github.com/troupe-dev/troupe/core"
)

// InMemoryStore is a volatile SessionStore keeping snapshots in a process
// local map. It is safe for concurrent access and best suited for tests or
// short-lived tools. Snapshots are cloned on save and on load to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*core.Snapshot
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[string]*core.Snapshot)}
}

// Save stores a clone of the snapshot under id, replacing any previous one.
func (s *InMemoryStore) Save(_ context.Context, id string, snap *core.Snapshot) error {
	if err := requireID(id); err != nil {
		return err
	}
	if snap == nil {
		return errCannotSaveNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = snap.Clone()
	return nil
}

// Load returns a clone of the snapshot saved under id.
func (s *InMemoryStore) Load(_ context.Context, id string) (*core.Snapshot, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return snap.Clone(), nil
}

// Delete removes the snapshot saved under id.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[id]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.snapshots, id)
	return nil
}

// List returns the saved ids in lexical order.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
