// Package idgen provides ID generation for ledger rows and request tracing.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New generates a time-ordered UUIDv7 string.
// Ledger rows use these so that lexical ID order follows insertion order.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}

// WithPrefix generates a time-ordered ID with a prefix (e.g. "tx_").
func WithPrefix(prefix string) string {
	return prefix + New()
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
