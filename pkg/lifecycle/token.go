package lifecycle

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// actionTokenBytes gives 256 bits of entropy
const actionTokenBytes = 32

// newActionToken returns a fresh URL-safe token and the hash stored in its place
func newActionToken() (token, hash string, err error) {
	buf := make([]byte, actionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate action token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashActionToken(token), nil
}

// HashActionToken is the lookup key persisted for a token
func HashActionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
