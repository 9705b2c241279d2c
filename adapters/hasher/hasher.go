// Package hasher hashes and verifies admin tokens.
package hasher

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/schemaql/ports"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from a token.
func (h *Bcrypt) Hash(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), h.cost)
}

// Compare checks if token matches hash.
func (h *Bcrypt) Compare(hash []byte, token string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}

// IsHash reports whether s is a well-formed bcrypt hash.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// Ensure interface compliance.
var _ ports.TokenHasher = (*Bcrypt)(nil)

// Plain compares tokens verbatim (tests only).
type Plain struct{}

func (Plain) Hash(token string) ([]byte, error)       { return []byte(token), nil }
func (Plain) Compare(hash []byte, token string) bool { return string(hash) == token }

var _ ports.TokenHasher = Plain{}
