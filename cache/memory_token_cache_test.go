package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryTokenCache(time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	entry := &Entry{
		VirtualID:       "vid-1",
		SystemID:        "acc-1",
		Scopes:          []string{"read", "write"},
		AccessExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := c.Get(ctx, "h1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "h1", entry))
	require.NoError(t, c.Set(ctx, "h2", entry))
	assert.Equal(t, 2, c.Count(ctx))

	got, err := c.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	// mutating the returned value does not leak into the cache
	got.Scopes[0] = "admin"
	again, err := c.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, again.Scopes)

	require.NoError(t, c.Delete(ctx, "h1"))
	_, err = c.Get(ctx, "h1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Count(ctx))
}

func TestMemoryTokenCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryTokenCache(20 * time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(ctx, "h", &Entry{VirtualID: "vid-1"}))

	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "h")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
