package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewSecret returns n random bytes, base64 encoded, for use as a signing secret.
func NewSecret(n int) (string, error) {
	if n < 32 {
		return "", fmt.Errorf("secret must be at least 32 bytes, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
