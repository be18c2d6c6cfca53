// Package secret implements the Secret Store: salted, bcrypt-backed
// verification of arbitrary client-supplied byte strings (access
// passwords, deletion passwords) without bcrypt's 72-byte input limit.
package secret

import (
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/transferd/pkg/core"
)

// Cost is the bcrypt cost factor applied to every Secret. Matches the
// identity package convention of a fixed, non-configurable default.
const Cost = 10

// SaltSize is the length in bytes of the random salt generated for
// each Secret.
const SaltSize = 16

// Secret is the persisted representation of a hashed password: a
// random salt and the bcrypt digest of sha256(salt || candidate). Both
// fields are stored verbatim by the metadata store.
type Secret struct {
	Salt []byte
	Hash []byte
}

// Create hashes password into a new Secret. A fresh 16-byte salt is
// drawn from crypto/rand; the SHA-256 digest of salt || password is
// what actually goes through bcrypt, which sidesteps bcrypt's 72-byte
// input ceiling for arbitrary client material.
func Create(password []byte) (*Secret, error) {
	if len(password) == 0 {
		return nil, core.InvalidAuth("empty secret")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, core.Wrap(core.KindInvalidAuth, "failed to generate salt", err)
	}

	hash, err := bcrypt.GenerateFromPassword(digest(password, salt), Cost)
	if err != nil {
		return nil, core.Wrap(core.KindInvalidAuth, "failed to hash secret", err)
	}

	return &Secret{Salt: salt, Hash: hash}, nil
}

// Verify recomputes sha256(salt || candidate) and checks it against
// s.Hash with bcrypt's own constant-time comparison. Any mismatch,
// malformed salt, or hash failure surfaces uniformly as InvalidAuth:
// the caller must never be able to distinguish "wrong secret" from
// "no such secret" by error shape.
func Verify(s *Secret, candidate []byte) error {
	if s == nil || len(s.Salt) != SaltSize || len(candidate) == 0 {
		return core.InvalidAuth("invalid secret")
	}

	if err := bcrypt.CompareHashAndPassword(s.Hash, digest(candidate, s.Salt)); err != nil {
		return core.InvalidAuth("secret mismatch")
	}
	return nil
}

// digest computes sha256(salt || input), removing bcrypt's 72-byte
// input ceiling for arbitrary client material while still binding the
// caller-supplied salt into the hashed value.
func digest(input, salt []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write(input)
	return h.Sum(nil)
}
