package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of nBytes random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateRequestID returns an id for pairing requests. It never fails:
// if the system RNG is unavailable the caller still gets a usable id.
func GenerateRequestID() string {
	code, err := GenerateCode(8)
	if err != nil {
		return "req-fallback"
	}
	return "req-" + code
}
