package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex-encoded SHA-256 digest of content. It is the
// content identity used as the reconciliation key for sources whose provider
// does not supply one (GitHub blobs already carry their git SHA).
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ContentHashString is a convenience wrapper for string content.
func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}
