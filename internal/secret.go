package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// refreshSecretSize is the raw entropy per refresh secret. 32 bytes keeps a
// comfortable margin over the 128-bit floor even after digesting.
const refreshSecretSize = 32

// NewRefreshSecret returns a fresh opaque refresh secret: 32 random bytes,
// base64url without padding. The caller transmits it to the client exactly
// once; only its digest may be stored.
func NewRefreshSecret() (string, error) {
	var raw [refreshSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DigestSecret returns the hex-encoded SHA-256 digest of a refresh secret.
// Digest equality is the sole criterion for matching a presented secret to a
// stored record.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
