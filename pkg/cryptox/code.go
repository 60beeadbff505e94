// Package cryptox provides small crypto helpers: one-time code generation
// and signing-secret loading.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// CodeAlphabet is the character set for one-time codes sent over SMS.
// Visually ambiguous characters (0/O, 1/l/I, 5/S, 8/B, 2/Z) are excluded so
// a code survives being read off a small phone screen and typed back in.
const CodeAlphabet = "34679ACDEFGHJKMNPQRTUVWXY"

// DefaultCodeLength is the default number of characters in a one-time code.
const DefaultCodeLength = 6

// GenerateCode creates a random one-time code of the given length drawn
// from CodeAlphabet. Returns an error if the random number generator fails.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}

	return string(buf), nil
}

// EqualCodes compares two codes in constant time.
func EqualCodes(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
