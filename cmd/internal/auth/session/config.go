package session

import (
	"os"
	"strings"
	"time"
)

// Config defines all runtime configuration for the session protocol.
//
// It controls the two token lifetimes, the signing secret, and the bound on
// store round-trips. It is intentionally explicit and environment-driven so
// deployments can tune security parameters without code changes.
type Config struct {
	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens and therefore the
	// store-level TTL of the session record. Must exceed AccessTokenTTL.
	RefreshTokenTTL time.Duration

	// StoreTimeout bounds every Get/Put/Delete against the session store.
	// On timeout the protocol fails closed.
	StoreTimeout time.Duration

	// SigningSecret is the HMAC-SHA256 key for token signing.
	SigningSecret string
}

// DefaultConfig returns the protocol defaults: 10 minute access tokens,
// 1 hour refresh tokens. The signing secret has no default.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:  600 * time.Second,
		RefreshTokenTTL: 3600 * time.Second,
		StoreTimeout:    3 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - TORII_AUTH_SIGNING_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - TORII_AUTH_ACCESS_TTL
//   - TORII_AUTH_REFRESH_TTL
//   - TORII_AUTH_STORE_TIMEOUT
//
// Returns ErrConfig if configuration is invalid, including a refresh lifetime
// that does not exceed the access lifetime.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("TORII_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("TORII_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("TORII_AUTH_STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.StoreTimeout = d
	}

	cfg.SigningSecret = strings.TrimSpace(os.Getenv("TORII_AUTH_SIGNING_SECRET"))
	if cfg.SigningSecret == "" {
		return Config{}, ErrConfig
	}

	// Invariant: a refresh token must outlive the access token it renews.
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
