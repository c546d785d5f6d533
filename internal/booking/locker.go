package booking

import (
	"context"
	"sync"
)

// Locker guards the per-slot critical section in Book. Production wiring uses
// the Redis slot locker; tests and the simulate tool use MemLocker.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// MemLocker serializes critical sections per key with in-process mutexes.
type MemLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemLocker() *MemLocker {
	return &MemLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[slotKey]
	if !ok {
		m = &sync.Mutex{}
		l.locks[slotKey] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
