package fingerprint

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash returns the sha256 hex digest of text. Hash cache rows store
// it to detect when an item's content has changed since fingerprinting.
func ContentHash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}
