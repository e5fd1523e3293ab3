package session

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("TORII_AUTH_SIGNING_SECRET", "test-secret")
	t.Setenv("TORII_AUTH_ACCESS_TTL", "")
	t.Setenv("TORII_AUTH_REFRESH_TTL", "")
	t.Setenv("TORII_AUTH_STORE_TIMEOUT", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.AccessTokenTTL != 600*time.Second {
		t.Errorf("AccessTokenTTL = %v, want 10m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 3600*time.Second {
		t.Errorf("RefreshTokenTTL = %v, want 1h", cfg.RefreshTokenTTL)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Errorf("StoreTimeout = %v, want 3s", cfg.StoreTimeout)
	}
	if cfg.SigningSecret != "test-secret" {
		t.Errorf("SigningSecret = %q", cfg.SigningSecret)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("TORII_AUTH_SIGNING_SECRET", "test-secret")
	t.Setenv("TORII_AUTH_ACCESS_TTL", "5m")
	t.Setenv("TORII_AUTH_REFRESH_TTL", "30m")
	t.Setenv("TORII_AUTH_STORE_TIMEOUT", "500ms")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 5m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 30*time.Minute {
		t.Errorf("RefreshTokenTTL = %v, want 30m", cfg.RefreshTokenTTL)
	}
	if cfg.StoreTimeout != 500*time.Millisecond {
		t.Errorf("StoreTimeout = %v, want 500ms", cfg.StoreTimeout)
	}
}

func TestLoadConfigFromEnvInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing secret",
			env:  map[string]string{"TORII_AUTH_SIGNING_SECRET": ""},
		},
		{
			name: "blank secret",
			env:  map[string]string{"TORII_AUTH_SIGNING_SECRET": "   "},
		},
		{
			name: "garbage access ttl",
			env:  map[string]string{"TORII_AUTH_ACCESS_TTL": "soon"},
		},
		{
			name: "negative access ttl",
			env:  map[string]string{"TORII_AUTH_ACCESS_TTL": "-1m"},
		},
		{
			name: "garbage refresh ttl",
			env:  map[string]string{"TORII_AUTH_REFRESH_TTL": "10 minutes"},
		},
		{
			name: "zero store timeout",
			env:  map[string]string{"TORII_AUTH_STORE_TIMEOUT": "0s"},
		},
		{
			name: "refresh not longer than access",
			env: map[string]string{
				"TORII_AUTH_ACCESS_TTL":  "1h",
				"TORII_AUTH_REFRESH_TTL": "1h",
			},
		},
		{
			name: "refresh shorter than access",
			env: map[string]string{
				"TORII_AUTH_ACCESS_TTL":  "1h",
				"TORII_AUTH_REFRESH_TTL": "10m",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TORII_AUTH_SIGNING_SECRET", "test-secret")
			t.Setenv("TORII_AUTH_ACCESS_TTL", "")
			t.Setenv("TORII_AUTH_REFRESH_TTL", "")
			t.Setenv("TORII_AUTH_STORE_TIMEOUT", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
