// Package identity implements Torii's user directory.
//
// It contains the user model, password hashing (Argon2id), input
// normalization, and the Postgres-backed store used by the HTTP layer.
package identity
