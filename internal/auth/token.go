// token.go generates opaque bearer tokens. A token is random bytes encoded
// with URL-safe base64 behind a fixed prefix; only its SHA-256 hash is stored,
// so authentication re-hashes the presented token and compares.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenPrefix marks registry tokens so leaked credentials are identifiable
// in logs and secret scanners.
const TokenPrefix = "agr_"

const tokenRandomBytes = 32

// GenerateToken returns a new plaintext bearer token. The plaintext is shown
// to the user exactly once; callers persist only HashToken(token).
func GenerateToken() (string, error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the lowercase hex SHA-256 digest of a token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the leading characters of a token for display in
// token listings, enough to recognize a token without revealing it.
func DisplayPrefix(token string) string {
	const visible = len(TokenPrefix) + 8
	if len(token) <= visible {
		return token
	}
	return token[:visible]
}

// HasTokenPrefix reports whether a presented credential looks like a
// registry token
func HasTokenPrefix(token string) bool {
	return strings.HasPrefix(token, TokenPrefix)
}
