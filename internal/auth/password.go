// Package auth provides password hashing for resource-owner accounts.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/sentinel/domain"
)

// BcryptPasswordHasher implements domain.PasswordHasher using bcrypt.
// bcrypt digests embed their salt, so Verify needs only the digest.
type BcryptPasswordHasher struct {
	Cost int
}

// NewBcryptPasswordHasher creates a new BcryptPasswordHasher.
// Cost defaults to bcrypt.DefaultCost if cost <= 0.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{Cost: cost}
}

// Hash generates a salted bcrypt digest for the given password.
func (h *BcryptPasswordHasher) Hash(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a bcrypt digest with its possible plaintext
// equivalent in constant time. Returns nil on a match.
func (h *BcryptPasswordHasher) Verify(digest, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
}

var _ domain.PasswordHasher = (*BcryptPasswordHasher)(nil)
