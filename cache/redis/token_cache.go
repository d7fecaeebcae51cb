package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/vident/cache"
)

const scanBatch = 100

// TokenCache implements cache.TokenCache on a shared Redis instance, so every
// node observes a revocation performed by any other.
type TokenCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ cache.TokenCache = (*TokenCache)(nil)

// NewTokenCache creates a TokenCache storing entries under "<prefix>:token:".
func NewTokenCache(client *redis.Client, prefix string, ttl time.Duration) *TokenCache {
	return &TokenCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *TokenCache) redisKey(accessHash string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, accessHash)
}

func (r *TokenCache) Set(ctx context.Context, accessHash string, entry *cache.Entry) error {
	scopes, err := json.Marshal(entry.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	key := r.redisKey(accessHash)
	fields := map[string]any{
		"virtual_id": entry.VirtualID,
		"system_id":  entry.SystemID,
		"scopes":     string(scopes),
		"expires_at": entry.AccessExpiresAt.UnixNano(),
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set token in redis: %w", err)
	}

	return nil
}

func (r *TokenCache) Get(ctx context.Context, accessHash string) (*cache.Entry, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(accessHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("failed to get token from redis: %w", err)
	}
	if len(res) == 0 {
		return nil, cache.ErrMiss
	}

	expiresAt, err := strconv.ParseInt(res["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cached expiry: %w", err)
	}

	var scopes []string
	if err := json.Unmarshal([]byte(res["scopes"]), &scopes); err != nil {
		return nil, fmt.Errorf("invalid cached scopes: %w", err)
	}

	return &cache.Entry{
		VirtualID:       res["virtual_id"],
		SystemID:        res["system_id"],
		Scopes:          scopes,
		AccessExpiresAt: time.Unix(0, expiresAt).UTC(),
	}, nil
}

func (r *TokenCache) Delete(ctx context.Context, accessHash string) error {
	if err := r.client.Del(ctx, r.redisKey(accessHash)).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}

	return nil
}

// Clear removes every key under the prefix using SCAN, so it does not block
// the server the way KEYS would.
func (r *TokenCache) Clear(ctx context.Context) error {
	return r.scan(ctx, func(keys []string) error {
		return r.client.Del(ctx, keys...).Err()
	})
}

func (r *TokenCache) Count(ctx context.Context) int {
	var count int
	_ = r.scan(ctx, func(keys []string) error {
		count += len(keys)
		return nil
	})

	return count
}

func (r *TokenCache) scan(ctx context.Context, fn func(keys []string) error) error {
	pattern := r.redisKey("*")
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan token keys: %w", err)
		}

		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
