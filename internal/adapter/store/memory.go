// Package store provides SystemStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"hydra/internal/domain"
)

// MemoryStore keeps systems in a map guarded by a RWMutex. Readers never
// block each other; stored systems are never mutated in place.
type MemoryStore struct {
	mu      sync.RWMutex
	systems map[string]*domain.System
}

var _ domain.SystemStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{systems: make(map[string]*domain.System)}
}

// Put stores sys. An existing ID yields domain.ErrDuplicate.
func (s *MemoryStore) Put(_ context.Context, sys *domain.System) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.systems[sys.ID]; ok {
		return domain.NewDomainError("MemoryStore.Put", domain.ErrDuplicate, sys.ID)
	}
	s.systems[sys.ID] = sys
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sys, ok := s.systems[id]
	if !ok {
		return nil, domain.NewDomainError("MemoryStore.Get", domain.ErrSystemNotFound, id)
	}
	return sys, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.systems[id]; !ok {
		return false, nil
	}
	delete(s.systems, id)
	return true, nil
}

// List returns system IDs ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	all := make([]*domain.System, 0, len(s.systems))
	for _, sys := range s.systems {
		all = append(all, sys)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	ids := make([]string, len(all))
	for i, sys := range all {
		ids[i] = sys.ID
	}
	return ids, nil
}
