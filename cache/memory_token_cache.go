package cache

import (
	"context"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenCache implements TokenCache using ttlcache.
//
// It is process-local: with more than one instance serving the same store a
// revocation on one instance leaves stale entries on the others. Use the
// redis implementation there.
type MemoryTokenCache struct {
	cache *ttlcache.Cache[string, Entry]
}

// NewMemoryTokenCache creates an in-memory cache whose entries live at most ttl.
func NewMemoryTokenCache(ttl time.Duration) *MemoryTokenCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, Entry](ttl),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)

	go c.Start()

	return &MemoryTokenCache{cache: c}
}

func (s *MemoryTokenCache) Set(_ context.Context, accessHash string, entry *Entry) error {
	e := *entry
	e.Scopes = slices.Clone(entry.Scopes)
	s.cache.Set(accessHash, e, ttlcache.DefaultTTL)

	return nil
}

func (s *MemoryTokenCache) Get(_ context.Context, accessHash string) (*Entry, error) {
	item := s.cache.Get(accessHash)
	if item == nil {
		return nil, ErrMiss
	}

	e := item.Value()
	e.Scopes = slices.Clone(e.Scopes)

	return &e, nil
}

func (s *MemoryTokenCache) Delete(_ context.Context, accessHash string) error {
	s.cache.Delete(accessHash)

	return nil
}

func (s *MemoryTokenCache) Clear(_ context.Context) error {
	s.cache.DeleteAll()

	return nil
}

func (s *MemoryTokenCache) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryTokenCache) Close() error {
	s.cache.Stop()

	return nil
}
