package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-process Store used by tests and the simulate tool.
// Reservation state lives in a single map guarded by one mutex, which gives
// the same exactly-one-winner semantics as the Postgres unique key.
type MemStore struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*Provider
	reserved  map[string]time.Time // slot key -> hold_until
}

func NewMemStore() *MemStore {
	return &MemStore{
		providers: make(map[uuid.UUID]*Provider),
		reserved:  make(map[string]time.Time),
	}
}

func (s *MemStore) AddProvider(p *Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.providers[p.ID] = &cp
}

func (s *MemStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) OpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[providerID]
	if !ok {
		return nil, ErrProviderNotFound
	}

	all := ExpandSlots(p, from, to)
	open := all[:0]
	for _, slot := range all {
		if _, taken := s.reserved[slot.Key()]; !taken {
			open = append(open, slot)
		}
	}
	return open, nil
}

func (s *MemStore) Reserve(ctx context.Context, slot AppointmentSlot, holdUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[slot.ProviderID]
	if !ok {
		return ErrProviderNotFound
	}
	if !p.Covers(slot) {
		return ErrSlotOutsideAvailability
	}

	key := slot.Key()
	if _, taken := s.reserved[key]; taken {
		return ErrSlotTaken
	}
	s.reserved[key] = holdUntil
	return nil
}

func (s *MemStore) Release(ctx context.Context, providerID uuid.UUID, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SlotKey(providerID, start)
	if _, ok := s.reserved[key]; !ok {
		return ErrReservationNotFound
	}
	delete(s.reserved, key)
	return nil
}
