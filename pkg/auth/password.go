package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier checks a presented secret against a stored hash
type CredentialVerifier interface {
	Matches(presented, storedHash string) bool
}

// BcryptVerifier verifies and produces bcrypt password hashes.
// bcrypt comparison runs in constant time with respect to the hash contents.
type BcryptVerifier struct {
	cost int
}

// NewBcryptVerifier creates a verifier hashing with the given cost.
// Out of range costs fall back to bcrypt.DefaultCost.
func NewBcryptVerifier(cost int) *BcryptVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{cost: cost}
}

// Matches reports whether presented hashes to storedHash.
// A malformed stored hash never matches.
func (v *BcryptVerifier) Matches(presented, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)) == nil
}

// Hash returns the bcrypt hash of plain
func (v *BcryptVerifier) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
