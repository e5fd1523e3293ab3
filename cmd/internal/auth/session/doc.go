// Package session implements torii's cookie-session authentication protocol.
//
// A login issues a short-lived access token and a longer-lived refresh token
// (both HMAC-SHA256 signed, carrying sub and exp), binds them to a server-side
// session record in a TTL key-value store, and hands all three values to the
// browser as cookies. Every protected request is decided by Service.Authenticate:
// it either admits the request, silently rotates the token pair against the
// stored record, or rejects it with a uniform unauthenticated signal.
//
// HTTP transport and cookie mechanics are intentionally out of scope here;
// see cmd/internal/auth/api.
package session
