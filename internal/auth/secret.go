package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Opaque refresh secrets carry 64 bytes (512 bits) of entropy, so the stored
// hash needs no salt: pre-image resistance alone protects it.
const refreshSecretLen = 64

func newRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret is the one-way mapping from the opaque refresh secret to the
// value kept at rest. The plaintext secret is never stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
