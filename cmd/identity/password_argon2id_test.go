package identity

import (
	"errors"
	"strings"
	"testing"
)

func testParams() Argon2idParams {
	// Small parameters keep the test fast; production uses DefaultArgon2idParams.
	return Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	enc, err := HashPassword("correct horse battery", testParams())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding: %s", enc)
	}

	ok, err := VerifyPassword("correct horse battery", enc)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = VerifyPassword("wrong horse battery", enc)
	if err != nil {
		t.Fatalf("VerifyPassword mismatch: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	t.Parallel()

	a, err := HashPassword("correct horse battery", testParams())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("correct horse battery", testParams())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestHashPasswordPolicy(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short", testParams()); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 300), testParams()); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aaaa",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aaaa",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aaaa",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aaaa",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA",
		// Memory far above the configured maximum.
		"$argon2id$v=19$m=4194304,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$" + strings.Repeat("a", 43),
	}
	for _, enc := range cases {
		if _, err := VerifyPassword("whatever-pass", enc); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("hash %q: expected ErrInvalidHash, got %v", enc, err)
		}
	}
}
