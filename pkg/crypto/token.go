// Package crypto protects the bootstrap invocation: the orchestrator keeps a
// per-run token, the uploaded config only carries its bcrypt hash and the
// args sealed with it.
package crypto

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// NewToken returns a fresh run token.
func NewToken() string {
	return uuid.NewString()
}

// HashToken hashes a run token using bcrypt.
func HashToken(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
}

// CompareToken compares a presented token to the stored hash.
func CompareToken(hash []byte, token string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(token))
}
