package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the hex-encoded SHA-256 digest of content followed by
// salt. salt is typically the serialized kind-specific params bundle, so
// that otherwise-identical input bytes converted with different params
// are never mistaken for the same cache entry.
//
// The digest algorithm is a core cryptographic primitive with no
// equivalent in the example pack's dependency graph worth reaching for
// instead; crypto/sha256 is used directly rather than through a
// third-party wrapper.
func Compute(content []byte, salt []byte) string {
	h := sha256.New()
	h.Write(content)
	if len(salt) > 0 {
		h.Write([]byte{0})
		h.Write(salt)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether content (with salt) hashes to want.
func Verify(content []byte, salt []byte, want string) bool {
	return Compute(content, salt) == want
}
