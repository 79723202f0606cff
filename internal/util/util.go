package util

import (
	"crypto/sha1"
	"encoding/hex"
)

// ETag derives a stable tag from the parts identifying a derived artifact,
// e.g. a preview's source file plus its transform parameters.
func ETag(parts ...string) string {
	hasher := sha1.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{0})
	}

	return hex.EncodeToString(hasher.Sum(nil))
}
