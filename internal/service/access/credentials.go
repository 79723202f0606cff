package access

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret derives the stored form of an admin or guest secret. Only the
// hash is ever persisted or compared; plaintext never leaves the request.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("cannot hash secret: %w", err)
	}

	return string(hash), nil
}

// verifySecret compares in constant time via bcrypt.
func verifySecret(hash, secret string) bool {
	if hash == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
