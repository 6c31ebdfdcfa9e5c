package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// fingerprintLen is the number of base64url characters kept (72 bits).
const fingerprintLen = 12

// FingerprintToken returns a short, deterministic SHA-256 fingerprint of a
// token. It lets logs correlate requests carrying the same token without
// recording the token itself.
func FingerprintToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:fingerprintLen]
}
