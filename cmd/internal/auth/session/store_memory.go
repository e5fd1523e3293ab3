package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a dev-and-test fallback when Redis is not configured.
// It honors the same TTL contract as RedisStore: non-positive Put ttl
// deletes, and expired entries behave as absent.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	rec      Record
	expireAt time.Time
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		delete(s.entries, sessionID)
		return nil
	}
	s.entries[sessionID] = memEntry{rec: rec, expireAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	if !e.expireAt.After(time.Now()) {
		// Lazy eviction; Redis does this server-side.
		delete(s.entries, sessionID)
		return Record{}, ErrRecordNotFound
	}
	return e.rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}
