package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

// HashContext separates hash domains. The same input hashed under two
// contexts yields unrelated digests.
type HashContext string

const (
	ContextAccessToken  HashContext = "access_token"
	ContextRefreshToken HashContext = "refresh_token"
	ContextPassword     HashContext = "password"
	ContextClientSecret HashContext = "client_secret"
)

// Hasher computes keyed BLAKE2b-256 digests. Each context gets its own key,
// derived from the pepper with HKDF-SHA256.
type Hasher struct {
	pepper []byte

	mu   sync.RWMutex
	keys map[HashContext][]byte
}

// NewHasher creates a Hasher for the given pepper.
func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) == 0 {
		return nil, fmt.Errorf("hasher: empty pepper")
	}
	h := &Hasher{
		pepper: append([]byte(nil), pepper...),
		keys:   make(map[HashContext][]byte),
	}
	for _, c := range []HashContext{ContextAccessToken, ContextRefreshToken, ContextPassword, ContextClientSecret} {
		if _, err := h.key(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hasher) key(c HashContext) ([]byte, error) {
	h.mu.RLock()
	k, ok := h.keys[c]
	h.mu.RUnlock()
	if ok {
		return k, nil
	}

	k = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, h.pepper, nil, []byte("vident/"+string(c))), k); err != nil {
		return nil, fmt.Errorf("hasher: derive key for %s: %w", c, err)
	}

	h.mu.Lock()
	h.keys[c] = k
	h.mu.Unlock()
	return k, nil
}

// Hash returns the hex encoded digest of value under context c.
func (h *Hasher) Hash(c HashContext, value string) string {
	k, err := h.key(c)
	if err != nil {
		// HKDF over SHA-256 only fails when asked for more than 255*32 bytes.
		panic(err)
	}
	mac, err := blake2b.New256(k)
	if err != nil {
		panic(err)
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares value against a stored digest in constant time.
func (h *Hasher) Verify(c HashContext, value, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(c, value)), []byte(digest)) == 1
}
