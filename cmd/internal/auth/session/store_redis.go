package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore is the production Store backed by Redis.
//
// Records are stored as JSON under "session:<id>" with a server-side TTL,
// so expired sessions are evicted by Redis itself without a janitor.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed session store.
// The client is owned by the caller; the store never closes it.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: redisKeyPrefix,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Put upserts the record, refreshing the key TTL. A non-positive ttl means
// the record is already expired and is deleted instead of written.
func (s *RedisStore) Put(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error {
	if sessionID == "" {
		return fmt.Errorf("session: missing session id")
	}
	if ttl <= 0 {
		return s.client.Del(ctx, s.key(sessionID)).Err()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}

	return s.client.Set(ctx, s.key(sessionID), data, ttl).Err()
}

// Get loads the record, returning ErrRecordNotFound for absent or evicted ids.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (Record, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, fmt.Errorf("session: unmarshal record: %w", err)
	}
	return rec, nil
}

// Delete removes the record. Deleting an absent id is not an error.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
