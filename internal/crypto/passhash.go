// Package crypto implements the password-hashing primitive and the one-way
// hashing of stored refresh tokens.
package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the pluggable credential-hashing primitive consumed by
// the session manager. Implementations must verify in constant time.
type PasswordHasher interface {
	// Hash derives a storable hash from a plaintext password.
	Hash(password string) (string, error)
	// Verify reports whether password matches the stored hash.
	Verify(password, hash string) bool
}

// BcryptHasher hashes passwords with bcrypt at a configurable cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a BcryptHasher with the given cost, clamped to
// the valid bcrypt range. Cost 12 is a reasonable default for interactive login.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the effective bcrypt cost.
func (h *BcryptHasher) Cost() int { return h.cost }

// Hash derives a bcrypt hash from password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares password against a stored bcrypt hash in constant time.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
