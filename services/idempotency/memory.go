package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/masomo-fees/core"
)

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// memoryStore keeps keys in process memory; used when no redis server is configured.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

var _ Store = (*memoryStore)(nil) // interface compliance check

func NewMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

// get returns the live entry of key, dropping it if expired. mu must be held.
func (s *memoryStore) get(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if ok && !core.Now().Before(e.expires) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *memoryStore) Reserve(_ context.Context, key, bodyHash string, ttl time.Duration) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.get(key); ok {
		return e.rec, false, nil
	}
	rec := Record{BodyHash: bodyHash}
	s.entries[key] = memoryEntry{rec: rec, expires: core.Now().Add(ttl)}
	return rec, true, nil
}

func (s *memoryStore) Complete(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(key); !ok {
		return ErrNotReserved
	}
	s.entries[key] = memoryEntry{rec: rec, expires: core.Now().Add(ttl)}
	return nil
}

func (s *memoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
