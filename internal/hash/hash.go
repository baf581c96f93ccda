// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

// Package hash implements the password and identity hashing algorithms used by
// the account core: SHA-256 pseudonyms, argon2id password hashes and session
// fingerprints, and read-only PBKDF2 legacy hashes.
//
// A Hash always carries the Params it was produced with. New hashes use the
// per-purpose defaults (PasswordParams, SessionParams); verification uses the
// params stored alongside the digest.
package hash

import (
	"bytes"
	"crypto/subtle"
	"log/slog"
)

// Hash is a digest together with its salt and parameters.
// It must never be logged or serialized outside the account core; String and
// LogValue redact the digest and salt.
type Hash struct {
	Digest []byte
	Salt   []byte
	Params Params
}

// IsZero reports whether h holds no digest.
func (h Hash) IsZero() bool {
	return len(h.Digest) == 0 && h.Params == nil
}

func (h Hash) String() string {
	if h.Params == nil {
		return "hash(<nil>)"
	}
	return "hash(" + h.Params.String() + ", redacted)"
}

// LogValue implements slog.LogValuer.
func (h Hash) LogValue() slog.Value {
	if h.Params == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(slog.String("params", h.Params.String()))
}

// Equal compares two hashes. Digests are compared in constant time; a
// parameter or length mismatch is simply unequal.
func Equal(a, b Hash) bool {
	if a.Params == nil || b.Params == nil || a.Params != b.Params {
		return false
	}
	if !bytes.Equal(a.Salt, b.Salt) {
		return false
	}
	return constantTimeEqual(a.Digest, b.Digest)
}

func constantTimeEqual(a, b []byte) bool {
	// ConstantTimeCompare returns 0 immediately on length mismatch; that leaks
	// only the length, which is public through the params.
	return subtle.ConstantTimeCompare(a, b) == 1
}
