package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeLength   = 12
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCode creates a random registration code using crypto/rand.
// Ambiguous characters (0/O, 1/I) are left out of the alphabet.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating random code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
