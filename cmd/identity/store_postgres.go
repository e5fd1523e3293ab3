package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the user directory over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must not close it.
// Schema/table identifiers are quoted to avoid SQL injection via
// identifiers. Errors are mapped to identity sentinel kinds where
// appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "torii").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "torii",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, user_name, email_address, hashed_password, is_active, created_at, updated_at, last_logged_in_at`

// CreateUser registers a new active user.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	userName := NormalizeUserName(in.UserName)
	if err := ValidateUserName(userName); err != nil {
		return User{}, err
	}
	email := NormalizeEmail(in.EmailAddress)
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		if errors.Is(err, ErrPasswordTooShort) || errors.Is(err, ErrPasswordTooLong) {
			return User{}, pgInvalid(op, err.Error())
		}
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u := User{
		ID:             NewUserID(),
		UserName:       userName,
		EmailAddress:   email,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, user_name, email_address, hashed_password, is_active, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID, u.UserName, u.EmailAddress, u.HashedPassword, u.IsActive, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// GetByEmail looks a user up by email address; the input is normalized first.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetByEmail"

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE email_address = $1`,
		NormalizeEmail(email),
	)
	return scanUser(op, row)
}

// GetByID looks a user up by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetByID"

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = $1`,
		id,
	)
	return scanUser(op, row)
}

// IsActive reports whether the user exists and is enabled. A missing user
// is inactive, not an error.
func (s *PostgresStore) IsActive(ctx context.Context, id string) (bool, error) {
	const op = "identity.IsActive"

	users := pgIdent(s.schema, "users")
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_active FROM `+users+` WHERE id = $1`,
		id,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return active, nil
}

// RecordLogin stamps the user's last successful login.
func (s *PostgresStore) RecordLogin(ctx context.Context, id string, now time.Time) error {
	const op = "identity.RecordLogin"

	users := pgIdent(s.schema, "users")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET last_logged_in_at = $2, updated_at = $2 WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ChangePassword replaces the stored password hash.
func (s *PostgresStore) ChangePassword(ctx context.Context, id string, hashedPassword string, now time.Time) error {
	const op = "identity.ChangePassword"

	if strings.TrimSpace(hashedPassword) == "" {
		return pgInvalid(op, "empty password hash")
	}

	users := pgIdent(s.schema, "users")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET hashed_password = $2, updated_at = $3 WHERE id = $1`,
		id, hashedPassword, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func scanUser(op string, row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.UserName,
		&u.EmailAddress,
		&u.HashedPassword,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.LastLoggedInAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_users_user_name":
		return "user_name", true
	case "uq_users_email_address":
		return "email_address", true
	default:
		switch {
		case strings.Contains(c, "user_name") || strings.Contains(c, "username"):
			return "user_name", true
		case strings.Contains(c, "email"):
			return "email_address", true
		default:
			return "unique", true
		}
	}
}
