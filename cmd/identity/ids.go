package identity

import "github.com/google/uuid"

// NewUserID returns a new random UUIDv4 user id.
func NewUserID() string {
	return uuid.NewString()
}
