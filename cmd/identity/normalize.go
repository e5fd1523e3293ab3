package identity

import "strings"

// NormalizeUserName performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode
// confusables) can be added later behind a versioned policy.
func NormalizeUserName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUserName enforces the username shape: 3..32 chars from
// [a-z0-9._-] after normalization.
func ValidateUserName(s string) error {
	if len(s) < 3 || len(s) > 32 {
		return OpError{Op: "identity.ValidateUserName", Kind: ErrInvalidInput, Msg: "length must be 3..32"}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return OpError{Op: "identity.ValidateUserName", Kind: ErrInvalidInput, Msg: "allowed characters are a-z 0-9 . _ -"}
		}
	}
	return nil
}

// ValidateEmail checks the minimal shape local@domain with a dot in the
// domain. Full RFC 5322 validation is deliberately out of scope; the
// confirmation email is the real validator.
func ValidateEmail(s string) error {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return OpError{Op: "identity.ValidateEmail", Kind: ErrInvalidInput, Msg: "expected local@domain"}
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return OpError{Op: "identity.ValidateEmail", Kind: ErrInvalidInput, Msg: "malformed domain"}
	}
	if len(s) > 254 {
		return OpError{Op: "identity.ValidateEmail", Kind: ErrInvalidInput, Msg: "address too long"}
	}
	return nil
}
