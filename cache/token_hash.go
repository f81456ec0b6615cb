package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a token string to a fixed-length cache key. Access
// tokens never land in the cache backend in cleartext.
func HashToken(token string) string {
	hashed := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hashed[:])
}
