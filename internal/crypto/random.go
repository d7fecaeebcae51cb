package crypto

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomAlphanumeric returns n characters drawn uniformly from [A-Za-z0-9].
func RandomAlphanumeric(n int) (string, error) {
	const limit = 256 - 256%len(alphanumeric)

	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n+n/4+8)
	for sb.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			sb.WriteByte(alphanumeric[int(b)%len(alphanumeric)])
			if sb.Len() == n {
				break
			}
		}
	}
	return sb.String(), nil
}

// PrefixedID returns prefix followed by a dash-free random UUID,
// e.g. "vid-3f0c...".
func PrefixedID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
