package license

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const (
	secretLength  = 8
	secretCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// generateMachineID mints the once-per-record machine token. A v4 UUID
// carries 122 random bits, enough that collisions are not a practical
// concern.
func generateMachineID() string {
	return uuid.NewString()
}

// generateSecret produces the 8-character alphanumeric credential secret.
// It is a shared lookup secret, not a cryptographic key, but we still draw
// from crypto/rand to keep the distribution uniform.
func generateSecret() (string, error) {
	bytes := make([]byte, secretLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	secret := make([]byte, secretLength)
	for i, b := range bytes {
		secret[i] = secretCharset[int(b)%len(secretCharset)]
	}
	return string(secret), nil
}
