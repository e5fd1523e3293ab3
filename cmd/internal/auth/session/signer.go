package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified content of a signed token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Signer issues and verifies compact signed tokens carrying sub and exp.
//
// Verify deliberately does NOT reject expired tokens: the protocol must
// distinguish "signature bad" (reject outright) from "signature good but
// expired" (attempt rotation), so the expiry comparison belongs to the caller.
type Signer interface {
	Issue(subject string, now time.Time, ttl time.Duration) (token string, exp time.Time, err error)
	Verify(token string) (Claims, error)
}

// HS256Signer signs tokens with HMAC-SHA256.
type HS256Signer struct {
	secret []byte
	parser *jwt.Parser
}

// NewHS256Signer builds a Signer from the shared signing secret.
func NewHS256Signer(secret string) (*HS256Signer, error) {
	if secret == "" {
		return nil, ErrConfig
	}
	return &HS256Signer{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			// Expiry is the protocol's branch selector, not a parse error.
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue produces a signed token with sub=subject and exp=now+ttl.
// Expiry is carried in whole Unix seconds.
func (s *HS256Signer) Issue(subject string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl).Truncate(time.Second)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Verify checks shape and signature and returns the embedded claims.
// Structural failures map to ErrTokenMalformed, signature mismatches to
// ErrTokenSignature; the protocol treats both as an absent credential.
func (s *HS256Signer) Verify(token string) (Claims, error) {
	var claims jwt.RegisteredClaims

	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return Claims{}, ErrTokenMalformed
	default:
		return Claims{}, ErrTokenMalformed
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return Claims{}, ErrTokenMalformed
	}

	return Claims{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
