package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when no entry is cached under the key.
var ErrMiss = errors.New("cache: miss")

// Entry is what a token check needs without touching the store. Entries are
// keyed by the access-token hash, never by the secret itself.
type Entry struct {
	VirtualID       string    `json:"virtualId"`
	SystemID        string    `json:"systemId"`
	Scopes          []string  `json:"scopes"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// TokenCache is a lookup cache in front of the token store. Callers must
// still check expiry on returned entries; the cache TTL only bounds memory.
type TokenCache interface {
	Set(ctx context.Context, accessHash string, entry *Entry) error
	Get(ctx context.Context, accessHash string) (*Entry, error)
	Delete(ctx context.Context, accessHash string) error
	// Clear drops every entry. Bulk revocations use it since they do not
	// know which hashes they removed.
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}
