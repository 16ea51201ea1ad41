package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns a hex-encoded SHA-256 hash of a refresh-token bearer
// string. Only the hash is persisted, so a storage compromise alone cannot
// yield a replayable token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual compares the hash of presented against storedHash in
// constant time.
func TokenHashEqual(presented, storedHash string) bool {
	got := HashToken(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
