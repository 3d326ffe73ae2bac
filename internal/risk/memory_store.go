package risk

import (
	"context"
	"sync"
)

// MemoryProfileStore is an in-memory ProfileStore for demo/test use.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*Profile)}
}

func (s *MemoryProfileStore) Get(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryProfileStore) Create(_ context.Context, p *Profile) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[p.UserID]; ok {
		return existing.Clone(), nil
	}
	s.profiles[p.UserID] = p.Clone()
	return p.Clone(), nil
}

func (s *MemoryProfileStore) Update(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.UserID]; !ok {
		return ErrProfileNotFound
	}
	s.profiles[p.UserID] = p.Clone()
	return nil
}

func (s *MemoryProfileStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}
