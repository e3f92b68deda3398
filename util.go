package keechallenge

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// randomBytes fills a fresh buffer with n bytes from the system CSPRNG.
// RNG exhaustion is not survivable for this subsystem, so the error is
// propagated rather than degraded.
func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d random bytes: %w", n, err)
	}
	return buf, nil
}

// wipe scrubs sensitive buffers in place. Safe on nil slices.
func wipe(buffers ...[]byte) {
	for _, b := range buffers {
		if len(b) > 0 {
			memguard.WipeBytes(b)
		}
	}
}

// fingerprint returns a short hex prefix of SHA-256(data), used when a
// challenge or digest needs to appear in audit output without disclosing
// the value itself.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:4])
}
