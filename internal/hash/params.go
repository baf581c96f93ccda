// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package hash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifies a hash family.
type Algorithm string

// Supported algorithm families.
const (
	AlgorithmSHA    Algorithm = "sha"
	AlgorithmArgon2 Algorithm = "argon2"
	AlgorithmPBKDF2 Algorithm = "pbkdf2"
)

// Params is the parameter set a Hash was produced with. It travels with the
// digest so verification never depends on the current defaults.
//
// The set of implementations is closed: SHAParams, Argon2Params, PBKDF2Params.
type Params interface {
	Algorithm() Algorithm
	String() string

	saltLength() int
	derive(secret, salt []byte) ([]byte, error)
}

// SHAParams selects an unsalted SHA-2 digest.
type SHAParams struct {
	Bits int
}

// SHA256 is the only supported SHA variant.
var SHA256 = SHAParams{Bits: 256}

// Algorithm implements Params.
func (SHAParams) Algorithm() Algorithm { return AlgorithmSHA }

func (p SHAParams) String() string { return fmt.Sprintf("sha/%d", p.Bits) }

func (SHAParams) saltLength() int { return 0 }

func (p SHAParams) derive(secret, _ []byte) ([]byte, error) {
	if p.Bits != 256 {
		return nil, oops.Code("HASH_INVALID_PARAMS").With("bits", p.Bits).Errorf("unsupported sha length")
	}
	sum := sha256.Sum256(secret)
	return sum[:], nil
}

// Argon2Params configures an argon2id derivation. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	Length      uint32
	SaltLength  int
	Version     int
}

// Algorithm implements Params.
func (Argon2Params) Algorithm() Algorithm { return AlgorithmArgon2 }

// String encodes the parameters, e.g. argon2/id/v19/m65536/t3/p2/l64/s64.
func (p Argon2Params) String() string {
	return fmt.Sprintf("argon2/id/v%d/m%d/t%d/p%d/l%d/s%d",
		p.Version, p.Memory, p.Iterations, p.Parallelism, p.Length, p.SaltLength)
}

func (p Argon2Params) saltLength() int { return p.SaltLength }

func (p Argon2Params) validate() error {
	switch {
	case p.Version != argon2.Version:
		return oops.Code("HASH_INVALID_PARAMS").With("version", p.Version).Errorf("unsupported argon2 version")
	case p.Memory == 0, p.Iterations == 0, p.Parallelism == 0:
		return oops.Code("HASH_INVALID_PARAMS").With("params", p.String()).Errorf("argon2 cost parameters must be positive")
	case p.Length == 0 || p.Length > 1<<10:
		return oops.Code("HASH_INVALID_PARAMS").With("length", p.Length).Errorf("invalid argon2 output length")
	case p.SaltLength < 0:
		return oops.Code("HASH_INVALID_PARAMS").With("salt_length", p.SaltLength).Errorf("invalid salt length")
	}
	return nil
}

func (p Argon2Params) derive(secret, salt []byte) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, p.Iterations, p.Memory, p.Parallelism, p.Length), nil
}

// HMAC names the PRF of a PBKDF2 derivation.
type HMAC string

// HMACSHA256 is the only PRF legacy hashes were produced with.
const HMACSHA256 HMAC = "sha256"

// PBKDF2Params configures a PBKDF2 derivation. Length is in bytes.
type PBKDF2Params struct {
	HMAC       HMAC
	Iterations int
	Length     int
	SaltLength int
}

// Algorithm implements Params.
func (PBKDF2Params) Algorithm() Algorithm { return AlgorithmPBKDF2 }

// String encodes the parameters, e.g. pbkdf2/sha256/i10000/l32/s16.
func (p PBKDF2Params) String() string {
	return fmt.Sprintf("pbkdf2/%s/i%d/l%d/s%d", p.HMAC, p.Iterations, p.Length, p.SaltLength)
}

func (p PBKDF2Params) saltLength() int { return p.SaltLength }

func (p PBKDF2Params) derive(secret, salt []byte) ([]byte, error) {
	if p.HMAC != HMACSHA256 {
		return nil, oops.Code("HASH_INVALID_PARAMS").With("hmac", string(p.HMAC)).Errorf("unsupported pbkdf2 hmac")
	}
	if p.Iterations <= 0 || p.Length <= 0 {
		return nil, oops.Code("HASH_INVALID_PARAMS").With("params", p.String()).Errorf("pbkdf2 parameters must be positive")
	}
	return pbkdf2.Key(secret, salt, p.Iterations, p.Length, sha256.New), nil
}

// Default parameter sets, one per purpose.
var (
	// PasswordParams is used for every new account password.
	PasswordParams = Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		Length:      64,
		SaltLength:  64,
		Version:     argon2.Version,
	}

	// SessionParams is deliberately cheap: fingerprints are derived on every
	// authenticated request and the salt is supplied by the client.
	SessionParams = Argon2Params{
		Memory:      19,
		Iterations:  2,
		Parallelism: 8,
		Length:      32,
		SaltLength:  8,
		Version:     argon2.Version,
	}

	// LegacyPasswordParams is what imported legacy accounts were hashed with.
	LegacyPasswordParams = PBKDF2Params{
		HMAC:       HMACSHA256,
		Iterations: 10000,
		Length:     32,
		SaltLength: 16,
	}
)

// ParseParams decodes the output of Params.String.
func ParseParams(s string) (Params, error) {
	family, _, _ := strings.Cut(s, "/")
	var (
		p   Params
		err error
	)
	switch Algorithm(family) {
	case AlgorithmSHA:
		var sp SHAParams
		_, err = fmt.Sscanf(s, "sha/%d", &sp.Bits)
		p = sp
	case AlgorithmArgon2:
		var (
			ap          Argon2Params
			parallelism uint32
		)
		_, err = fmt.Sscanf(s, "argon2/id/v%d/m%d/t%d/p%d/l%d/s%d",
			&ap.Version, &ap.Memory, &ap.Iterations, &parallelism, &ap.Length, &ap.SaltLength)
		if err == nil && parallelism > 255 {
			return nil, oops.Code("HASH_INVALID_PARAMS").With("params", s).Errorf("parallelism %d exceeds uint8 max", parallelism)
		}
		ap.Parallelism = uint8(parallelism) //nolint:gosec // bounds checked above
		p = ap
	case AlgorithmPBKDF2:
		var (
			pp   PBKDF2Params
			hmac string
		)
		rest, ok := strings.CutPrefix(s, "pbkdf2/")
		if !ok {
			return nil, oops.Code("HASH_INVALID_PARAMS").With("params", s).Errorf("malformed pbkdf2 params")
		}
		hmac, rest, _ = strings.Cut(rest, "/")
		pp.HMAC = HMAC(hmac)
		_, err = fmt.Sscanf(rest, "i%d/l%d/s%d", &pp.Iterations, &pp.Length, &pp.SaltLength)
		p = pp
	default:
		return nil, oops.Code("HASH_UNSUPPORTED_ALGORITHM").With("params", s).Errorf("unknown hash algorithm %q", family)
	}
	if err != nil {
		return nil, oops.Code("HASH_INVALID_PARAMS").With("params", s).Wrap(err)
	}
	// Reject trailing garbage Sscanf would have ignored.
	if p.String() != s {
		return nil, oops.Code("HASH_INVALID_PARAMS").With("params", s).Errorf("non-canonical params encoding")
	}
	return p, nil
}
