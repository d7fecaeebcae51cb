package crypto

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHasher(t *testing.T, pepper string) *Hasher {
	t.Helper()
	h, err := NewHasher([]byte(pepper))
	require.NoError(t, err)
	return h
}

func TestHasher_Deterministic(t *testing.T) {
	h := newTestHasher(t, "pepper-one-0123456789")

	a := h.Hash(ContextAccessToken, "secret")
	b := h.Hash(ContextAccessToken, "secret")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHasher_ContextsAreSeparated(t *testing.T) {
	h := newTestHasher(t, "pepper-one-0123456789")

	access := h.Hash(ContextAccessToken, "same-secret")
	refresh := h.Hash(ContextRefreshToken, "same-secret")
	assert.NotEqual(t, access, refresh)
	assert.NotEqual(t, access, h.Hash(ContextPassword, "same-secret"))
	assert.NotEqual(t, h.Hash(HashContext("custom"), "x"), h.Hash(ContextClientSecret, "x"))
}

func TestHasher_PepperMatters(t *testing.T) {
	a := newTestHasher(t, "pepper-one-0123456789")
	b := newTestHasher(t, "pepper-two-0123456789")
	assert.NotEqual(t, a.Hash(ContextPassword, "pw"), b.Hash(ContextPassword, "pw"))
}

func TestHasher_Verify(t *testing.T) {
	h := newTestHasher(t, "pepper-one-0123456789")
	digest := h.Hash(ContextPassword, "password01")

	assert.True(t, h.Verify(ContextPassword, "password01", digest))
	assert.False(t, h.Verify(ContextPassword, "password02", digest))
	assert.False(t, h.Verify(ContextClientSecret, "password01", digest))
}

func TestNewHasher_EmptyPepper(t *testing.T) {
	_, err := NewHasher(nil)
	assert.Error(t, err)
}

func TestRandomAlphanumeric(t *testing.T) {
	re := regexp.MustCompile(`^[A-Za-z0-9]+$`)
	for _, n := range []int{1, 64, 256} {
		s, err := RandomAlphanumeric(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		assert.Regexp(t, re, s)
	}

	a, _ := RandomAlphanumeric(256)
	b, _ := RandomAlphanumeric(256)
	assert.NotEqual(t, a, b)
}

func TestPrefixedID(t *testing.T) {
	id := PrefixedID("vid-")
	assert.True(t, strings.HasPrefix(id, "vid-"))
	assert.Len(t, id, 4+32)
	assert.NotContains(t, id[4:], "-")
}

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper.hex")

	first, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	assert.Len(t, first, PepperSize)

	second, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadOrCreatePepper_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepper.hex")
	require.NoError(t, os.WriteFile(path, []byte("not-hex"), 0o600))

	_, err := LoadOrCreatePepper(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o600))
	_, err = LoadOrCreatePepper(path)
	assert.Error(t, err)
}
