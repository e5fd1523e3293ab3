package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"
)

// Directory answers whether a session's user is still a valid, active subject.
// Implementations return (false, nil) for unknown users; a non-nil error means
// the lookup itself failed and the protocol fails closed.
type Directory interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// Presentation is the credential triple read from the client on every
// protected request. It is transient and never persisted.
type Presentation struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// Issued is the result of a login or a rotation: the session id and the
// freshly signed token pair with expiries.
type Issued struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Decision is a successful authentication outcome. Rotated is non-nil when
// the token pair was silently renewed and cookies must be re-issued.
type Decision struct {
	UserID  string
	Rotated *Issued
}

// Service is the authentication decision protocol. It owns the write path to
// session records exclusively; no other component mutates session state.
type Service struct {
	cfg    Config
	signer Signer
	store  Store
	users  Directory
	log    *slog.Logger
}

// NewService constructs the protocol from its injected dependencies.
func NewService(cfg Config, signer Signer, store Store, users Directory, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, signer: signer, store: store, users: users, log: log}
}

// Login issues a fresh token pair for an already-authenticated user, binds it
// to a brand-new session id, and writes the record with TTL equal to the
// refresh lifetime. Credential verification happens upstream; by the time
// Login runs the caller has established that userID is an active user.
func (s *Service) Login(ctx context.Context, now time.Time, userID string) (Issued, error) {
	issued, err := s.issuePair(now, userID)
	if err != nil {
		return Issued{}, err
	}

	sessionID, err := NewSessionID(now)
	if err != nil {
		return Issued{}, err
	}
	issued.SessionID = sessionID

	if err := s.putRecord(ctx, now, issued, userID); err != nil {
		return Issued{}, err
	}
	return issued, nil
}

// Authenticate runs the decision protocol for one request.
//
// The guards are evaluated as an explicit ordered sequence; the first guard
// that fails tags the rejection and short-circuits. Rejection never mutates
// the store: records are removed only by Logout, InvalidateOnPasswordChange,
// and store TTL eviction, so a request that lost a concurrent rotation cannot
// destroy the winning pair's session.
func (s *Service) Authenticate(ctx context.Context, now time.Time, pres Presentation) (Decision, error) {
	// Guard 1: all three credentials must be presented.
	if pres.SessionID == "" || pres.AccessToken == "" || pres.RefreshToken == "" {
		return Decision{}, ErrCredentialAbsent
	}

	// Guard 2: a session record must exist. Store failure is fail-closed.
	rec, err := s.getRecord(ctx, pres.SessionID)
	if err != nil {
		return Decision{}, err
	}

	// Guard 3: the presented access token must verify on its own; a forged or
	// garbled token is never compared against the record.
	access, err := s.signer.Verify(pres.AccessToken)
	if err != nil {
		return Decision{}, ErrCredentialInvalid
	}

	// Guard 4: byte-exact match against the stored access token.
	if !tokensEqual(pres.AccessToken, rec.AccessToken) {
		return Decision{}, ErrCredentialInvalid
	}

	// The verified exp claim is authoritative for accept/reject; the mirrored
	// record field only selected this branch.
	if access.ExpiresAt.After(now) {
		// Guard 5: the subject must still be active.
		if err := s.subjectActive(ctx, rec.UserID); err != nil {
			return Decision{}, err
		}
		return Decision{UserID: rec.UserID}, nil
	}

	// Access expired: silent-renewal branch.

	// Guard 6: the presented refresh token must verify on its own.
	refresh, err := s.signer.Verify(pres.RefreshToken)
	if err != nil {
		return Decision{}, ErrCredentialInvalid
	}

	// Guard 7: byte-exact match against the stored refresh token.
	if !tokensEqual(pres.RefreshToken, rec.RefreshToken) {
		return Decision{}, ErrCredentialInvalid
	}

	// Guard 8: the refresh token itself must not have expired.
	if !refresh.ExpiresAt.After(now) {
		return Decision{}, ErrCredentialExpired
	}

	// Guard 9: the subject must still be active before new tokens are minted.
	if err := s.subjectActive(ctx, rec.UserID); err != nil {
		return Decision{}, err
	}

	issued, err := s.rotate(ctx, now, pres.SessionID, rec.UserID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{UserID: rec.UserID, Rotated: &issued}, nil
}

// Logout deletes the session record. Deleting an absent record is not an
// error, so the operation is idempotent.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.log.Error("session.store.delete.fail", "err", err)
		return StoreError{Op: "delete", Err: err}
	}
	return nil
}

// InvalidateOnPasswordChange revokes the session after a password change.
// Identical store semantics to Logout; kept as a named operation so audit
// and call sites state their intent.
func (s *Service) InvalidateOnPasswordChange(ctx context.Context, sessionID string) error {
	return s.Logout(ctx, sessionID)
}

// rotate replaces both tokens and expiries for an existing session. The
// session id is deliberately kept: rotation renews credentials, not identity.
// Concurrent rotations of one session are tolerated; the last Put wins.
func (s *Service) rotate(ctx context.Context, now time.Time, sessionID, userID string) (Issued, error) {
	issued, err := s.issuePair(now, userID)
	if err != nil {
		return Issued{}, err
	}
	issued.SessionID = sessionID

	if err := s.putRecord(ctx, now, issued, userID); err != nil {
		return Issued{}, err
	}
	return issued, nil
}

// issuePair mints the access/refresh pair. Both carry the user id as subject
// and differ only in lifetime.
func (s *Service) issuePair(now time.Time, userID string) (Issued, error) {
	var issued Issued
	var err error

	issued.AccessToken, issued.AccessExpiresAt, err = s.signer.Issue(userID, now, s.cfg.AccessTokenTTL)
	if err != nil {
		return Issued{}, err
	}
	issued.RefreshToken, issued.RefreshExpiresAt, err = s.signer.Issue(userID, now, s.cfg.RefreshTokenTTL)
	if err != nil {
		return Issued{}, err
	}
	return issued, nil
}

func (s *Service) putRecord(ctx context.Context, now time.Time, issued Issued, userID string) error {
	rec := Record{
		UserID:           userID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExpiresAt.Unix(),
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExpiresAt.Unix(),
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.store.Put(ctx, issued.SessionID, rec, rec.TTL(now)); err != nil {
		s.log.Error("session.store.put.fail", "err", err, "session_id", issued.SessionID)
		return StoreError{Op: "put", Err: err}
	}
	return nil
}

func (s *Service) getRecord(ctx context.Context, sessionID string) (Record, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rec, err := s.store.Get(ctx, sessionID)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, ErrRecordNotFound):
		return Record{}, ErrCredentialAbsent
	default:
		s.log.Error("session.store.get.fail", "err", err, "session_id", sessionID)
		return Record{}, StoreError{Op: "get", Err: err}
	}
}

func (s *Service) subjectActive(ctx context.Context, userID string) error {
	active, err := s.users.IsActive(ctx, userID)
	if err != nil {
		s.log.Error("session.directory.fail", "err", err, "user_id", userID)
		return StoreError{Op: "directory", Err: err}
	}
	if !active {
		return ErrSubjectInactive
	}
	return nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().StoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func tokensEqual(presented, stored string) bool {
	if len(presented) == 0 || len(stored) == 0 || len(presented) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
