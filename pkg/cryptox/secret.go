package cryptox

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoSecret reports that no signing secret could be resolved.
var ErrNoSecret = errors.New("cryptox: no signing secret configured")

// MinSecretBytes is the minimum accepted secret length. HMAC-SHA-512 keys
// shorter than the block size weaken the MAC, so refuse anything tiny.
const MinSecretBytes = 32

// LoadSecret resolves the token-signing secret. A non-empty literal wins;
// otherwise the secret is read from path (surrounding whitespace trimmed).
func LoadSecret(literal, path string) ([]byte, error) {
	if literal != "" {
		return checkSecret([]byte(literal))
	}

	if path == "" {
		return nil, ErrNoSecret
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptox: reading secret file: %w", err)
	}

	return checkSecret([]byte(strings.TrimSpace(string(raw))))
}

func checkSecret(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("cryptox: signing secret too short (%d bytes, need %d)",
			len(secret), MinSecretBytes)
	}
	return secret, nil
}
