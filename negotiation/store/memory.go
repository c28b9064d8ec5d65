package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/types"
)

// MemoryStore is an in-process ConflictStore. A single mutex serializes all
// mutations, so Mutate is trivially transactional.
type MemoryStore struct {
	mu        sync.RWMutex
	conflicts map[string]*negotiation.Conflict
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conflicts: make(map[string]*negotiation.Conflict)}
}

// Create persists a new conflict.
func (s *MemoryStore) Create(_ context.Context, c *negotiation.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conflicts[c.ID]; exists {
		return types.NewError(types.ErrPersistence,
			fmt.Sprintf("conflict %s already exists", c.ID))
	}
	s.conflicts[c.ID] = c.Clone()
	return nil
}

// Get returns a copy of the conflict.
func (s *MemoryStore) Get(_ context.Context, id string) (*negotiation.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, types.NewError(types.ErrConflictNotFound,
			fmt.Sprintf("conflict %s not found", id))
	}
	return c.Clone(), nil
}

// Mutate applies fn to a working copy under the store lock and commits it
// only if fn succeeds.
func (s *MemoryStore) Mutate(_ context.Context, id string, fn func(*negotiation.Conflict) error) (*negotiation.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, types.NewError(types.ErrConflictNotFound,
			fmt.Sprintf("conflict %s not found", id))
	}
	working := c.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.conflicts[id] = working
	return working.Clone(), nil
}

// List returns conflicts ordered by detection time, optionally filtered by
// status.
func (s *MemoryStore) List(_ context.Context, status negotiation.Status) ([]*negotiation.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*negotiation.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		if status != "" && c.Status != status {
			continue
		}
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DetectedAt.Equal(result[j].DetectedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].DetectedAt.Before(result[j].DetectedAt)
	})
	return result, nil
}
