package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomString returns length random bytes as a base64url string.
func RandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
