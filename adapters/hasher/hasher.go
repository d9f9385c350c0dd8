// Package hasher implements the password hashing port guarding admin login.
package hasher

import (
	"github.com/tillstack/tillstack/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes admin passwords with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. An out-of-range cost falls back to the
// library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash derives a bcrypt hash of plaintext at the configured cost.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare reports whether plaintext matches the stored hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// Ensure interface compliance.
var _ ports.Hasher = (*Bcrypt)(nil)

// Fake stores and compares passwords verbatim so login tests can skip the
// bcrypt cost. Never wire it into a server.
type Fake struct{}

// Hash returns the plaintext unchanged.
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare is plain string equality.
func (Fake) Compare(hash []byte, plaintext string) bool {
	return string(hash) == plaintext
}

// Ensure interface compliance.
var _ ports.Hasher = Fake{}
