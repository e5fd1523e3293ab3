package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and cookie security defaults.
type Config struct {
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax    int
	LoginIPWindow time.Duration

	LoginIdentifierMax    int
	LoginIdentifierWindow time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults. Cookie hardening degrades loudly, not silently: invalid
// values fall back to the stricter default.
func LoadConfigFromEnv() Config {
	cfg := Config{
		CookiePath:            envString("TORII_AUTH_COOKIE_PATH", "/"),
		CookieDomain:          envString("TORII_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:          envBool("TORII_AUTH_COOKIE_SECURE", true),
		CookieSameSite:        parseSameSite(os.Getenv("TORII_AUTH_COOKIE_SAMESITE")),
		TrustProxy:            envBool("TORII_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:          envInt64("TORII_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginIPMax:            envInt("TORII_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:         envDuration("TORII_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginIdentifierMax:    envInt("TORII_AUTH_LOGIN_IDENTIFIER_MAX", 5),
		LoginIdentifierWindow: envDuration("TORII_AUTH_LOGIN_IDENTIFIER_WINDOW", 15*time.Minute),
	}

	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	// SameSite=None requires Secure; browsers drop the cookie otherwise.
	if cfg.CookieSameSite == http.SameSiteNoneMode && !cfg.CookieSecure {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
