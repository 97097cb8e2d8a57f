package memory

import (
	"context"
	"sync"
	"time"
)

type idempotencyEntry struct {
	orderID   string
	expiresAt time.Time
}

// IdempotencyStore is an in-process idempotency key store.
type IdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]idempotencyEntry
}

// NewIdempotencyStore returns a store keeping keys for ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]idempotencyEntry),
	}
}

// Reserve claims key, or reports the order recorded for it.
func (s *IdempotencyStore) Reserve(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return e.orderID, false, nil
	}
	s.entries[key] = idempotencyEntry{expiresAt: now.Add(s.ttl)}
	return "", true, nil
}

// Complete records the order created for key.
func (s *IdempotencyStore) Complete(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idempotencyEntry{orderID: orderID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Release drops key.
func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
