package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

const resetTokenBytes = 32

// GenerateResetToken reads 32 bytes from r and returns the hex plaintext
// (sent to the user) and its SHA-256 hex hash (stored).
func GenerateResetToken(r io.Reader) (token, hash string, err error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}

	token = hex.EncodeToString(buf)
	return token, HashResetToken(token), nil
}

func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
