package session

import (
	"errors"
	"fmt"
)

// Rejection taxonomy. All five collapse to the same client-visible 401; the
// distinction exists for internal branching, logging, and metrics only.
var (
	// ErrCredentialAbsent is returned when a cookie or the session record is missing.
	ErrCredentialAbsent = errors.New("credential absent")

	// ErrCredentialInvalid is returned on signature failure or token/record mismatch.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrCredentialExpired is returned when a token verifies but its exp has elapsed
	// beyond recovery (expired refresh token).
	ErrCredentialExpired = errors.New("credential expired")

	// ErrSubjectInactive is returned when the session's user is disabled or gone.
	ErrSubjectInactive = errors.New("subject inactive")

	// ErrStoreUnavailable is returned when the session store errors or times out.
	// Always fail-closed: the caller must treat it as unauthenticated.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

var (
	// ErrRecordNotFound is returned by Store.Get when no record exists for the id.
	ErrRecordNotFound = errors.New("session record not found")

	// ErrTokenMalformed is returned by Signer.Verify for structurally broken input.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenSignature is returned by Signer.Verify on signature mismatch.
	ErrTokenSignature = errors.New("token signature invalid")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// StoreError carries the failing store operation for logs while unwrapping to
// ErrStoreUnavailable so callers branch on the taxonomy, not on the cause.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable.Error(), e.Op, e.Err)
}

func (e StoreError) Unwrap() error { return ErrStoreUnavailable }
