// Package checksum provides SHA-256 checksum utilities for artifact content
// integrity. The hex digest produced here is a wire-format contract with API
// and CLI clients: lowercase hex, exactly 64 characters. Publish handlers use
// it to compute the stored checksum, and to verify a client-supplied checksum
// against the server's own computation. Keeping the hashing in one package
// avoids duplicating crypto/sha256 wiring across the publish, storage, and
// download layers.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SHA256 returns the SHA-256 digest of content as a lowercase hex string.
func SHA256(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SHA256Reader calculates the SHA-256 digest of data from a reader.
func SHA256Reader(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify reports whether the digest of content matches the expected checksum.
func Verify(content []byte, expectedChecksum string) bool {
	return SHA256(content) == expectedChecksum
}
