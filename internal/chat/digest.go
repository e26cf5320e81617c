package chat

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestPassword returns the lowercase hex SHA-256 of password and zeroes
// the slice so the plaintext does not outlive the call.
func DigestPassword(password []byte) string {
	sum := sha256.Sum256(password)
	clear(password)
	return hex.EncodeToString(sum[:])
}
