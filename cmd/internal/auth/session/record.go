package session

import (
	"context"
	"time"
)

// Record is the server-side session state keyed by session id.
//
// The stored token pair is always the most recently issued pair for the
// session. Expiries mirror the signed exp claims in Unix epoch seconds;
// RefreshExpiresAt > AccessExpiresAt always holds.
type Record struct {
	UserID           string `json:"user_id"`
	AccessToken      string `json:"access_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// TTL returns the remaining store lifetime for the record: time until the
// refresh token expires. Non-positive means the record must not be written.
func (r Record) TTL(now time.Time) time.Duration {
	return time.Unix(r.RefreshExpiresAt, 0).Sub(now)
}

// Store is the TTL key-value persistence boundary for session records.
//
// Implementations must treat a Put with non-positive ttl as an immediate
// delete, return ErrRecordNotFound from Get for absent ids, and accept
// Delete of an absent id without error. Mutation is always a full-record
// replace; there is no partial update and no cross-key coordination.
type Store interface {
	Put(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}
