package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret derives the stored credential form of a bearer secret:
// hex(sha256(secret + installationID)). The installation id salts the digest
// so identical secrets on different installations hash differently.
func HashSecret(secret, installationID string) string {
	sum := sha256.Sum256([]byte(secret + installationID))
	return hex.EncodeToString(sum[:])
}

// VerifySecret reports whether the presented secret matches the stored hash.
// The comparison is constant-time.
func VerifySecret(presented, installationID, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashSecret(presented, installationID)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
