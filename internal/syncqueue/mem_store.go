package syncqueue

import (
	"context"
	"sync"
)

// MemStore is the in-process Store used by tests.
type MemStore struct {
	mu      sync.Mutex
	pending []PendingMutation
	dead    []DeadLetter
	seen    map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{seen: make(map[string]struct{})}
}

func (s *MemStore) Append(ctx context.Context, m PendingMutation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[m.IdempotencyKey]; ok {
		return false, nil
	}
	s.seen[m.IdempotencyKey] = struct{}{}
	s.pending = append(s.pending, m)
	return true, nil
}

func (s *MemStore) Pending(ctx context.Context) ([]PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingMutation, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *MemStore) Remove(ctx context.Context, m PendingMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.ID == m.ID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemStore) DeadLetter(ctx context.Context, d DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, d)
	return nil
}

func (s *MemStore) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeadLetter, len(s.dead))
	copy(out, s.dead)
	return out, nil
}
