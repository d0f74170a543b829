// Package auth isolates the password-hashing choice behind a small seam.
//
// The replication core only ever handles the opaque password_hash column;
// which algorithm produced it is a pluggable decision. This package
// supplies the default: bcrypt.
package auth

import "golang.org/x/crypto/bcrypt"

// Hasher turns a plaintext password into an opaque hash and verifies one
// back against it.
type Hasher interface {
	Hash(password string) ([]byte, error)
	Verify(hash []byte, password string) bool
}

// BcryptHasher is the shipped default Hasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a Hasher using bcrypt's default cost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), h.Cost)
}

func (h *BcryptHasher) Verify(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
