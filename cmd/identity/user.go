package identity

import (
	"context"
	"time"
)

// User is Torii's canonical security principal.
// HashedPassword is a PHC-encoded Argon2id string; the plain password is
// never stored.
type User struct {
	ID             string
	UserName       string
	EmailAddress   string
	HashedPassword string
	IsActive       bool

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoggedInAt *time.Time
}

// CreateUserInput describes a user registration request.
// UserName and EmailAddress are normalized by the store before insertion.
type CreateUserInput struct {
	UserName     string
	EmailAddress string
	Password     string
	Now          time.Time
}

// Store is the user-directory persistence boundary.
type Store interface {
	// CreateUser registers a new active user. Returns a ConflictError when
	// the username or email is already taken, and ErrInvalidInput for
	// malformed input or a password that fails policy.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetByEmail looks a user up by normalized email address.
	GetByEmail(ctx context.Context, email string) (User, error)

	// GetByID looks a user up by id.
	GetByID(ctx context.Context, id string) (User, error)

	// IsActive reports whether the user exists and is enabled.
	// A missing user is reported as inactive, not as an error.
	IsActive(ctx context.Context, id string) (bool, error)

	// RecordLogin stamps the user's last successful login.
	RecordLogin(ctx context.Context, id string, now time.Time) error

	// ChangePassword replaces the stored password hash.
	ChangePassword(ctx context.Context, id string, hashedPassword string, now time.Time) error
}
