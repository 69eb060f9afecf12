// Package password hashes and verifies account secrets with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost keeps a single hash in the tens of milliseconds on commodity hardware.
const DefaultCost = 12

var ErrEmptySecret = errors.New("secret is empty")

type Hasher struct {
	cost int
}

// New returns a Hasher using cost, or DefaultCost when cost is out of bcrypt's range.
func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(secret string) ([]byte, error) {
	const op = "password.Hash"

	if secret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return hash, nil
}

func (h *Hasher) Verify(secret string, hash []byte) bool {
	if secret == "" || len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
