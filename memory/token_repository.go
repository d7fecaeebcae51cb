package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

type TokenRepository struct {
	mu        sync.RWMutex
	byAccess  map[string]domain.Token
	byRefresh map[string]string
}

var _ domain.TokenRepository = (*TokenRepository)(nil)

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		byAccess:  make(map[string]domain.Token),
		byRefresh: make(map[string]string),
	}
}

func cloneToken(t domain.Token) *domain.Token {
	t.Scopes = slices.Clone(t.Scopes)
	return &t
}

func (r *TokenRepository) Insert(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccess[token.AccessHash]; ok {
		return fmt.Errorf("token: %w", serrors.ErrConflict)
	}
	if _, ok := r.byRefresh[token.RefreshHash]; ok {
		return fmt.Errorf("token: %w", serrors.ErrConflict)
	}

	r.byAccess[token.AccessHash] = *cloneToken(*token)
	r.byRefresh[token.RefreshHash] = token.AccessHash
	return nil
}

func (r *TokenRepository) HashTaken(_ context.Context, accessHash, refreshHash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, a := r.byAccess[accessHash]
	_, b := r.byRefresh[refreshHash]
	return a || b, nil
}

func (r *TokenRepository) FindByAccessHash(_ context.Context, accessHash string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byAccess[accessHash]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return cloneToken(t), nil
}

func (r *TokenRepository) FindByRefreshHash(_ context.Context, refreshHash string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	access, ok := r.byRefresh[refreshHash]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return cloneToken(r.byAccess[access]), nil
}

// remove expects the write lock to be held.
func (r *TokenRepository) remove(accessHash string) {
	t := r.byAccess[accessHash]
	delete(r.byAccess, accessHash)
	delete(r.byRefresh, t.RefreshHash)
}

func (r *TokenRepository) DeleteByAccessHash(_ context.Context, accessHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccess[accessHash]; !ok {
		return 0, nil
	}
	r.remove(accessHash)
	return 1, nil
}

func (r *TokenRepository) DeleteByRefreshHash(_ context.Context, refreshHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	access, ok := r.byRefresh[refreshHash]
	if !ok {
		return 0, nil
	}
	r.remove(access)
	return 1, nil
}

func (r *TokenRepository) deleteWhere(match func(domain.Token) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for access, t := range r.byAccess {
		if match(t) {
			r.remove(access)
			n++
		}
	}
	return n
}

func (r *TokenRepository) DeleteByVirtualIDs(_ context.Context, virtualIDs []string) (int64, error) {
	return r.deleteWhere(func(t domain.Token) bool { return slices.Contains(virtualIDs, t.VirtualID) }), nil
}

func (r *TokenRepository) DeleteRefreshExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.RefreshExpired(now) }), nil
}

// Len returns the number of stored rows.
func (r *TokenRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byAccess)
}
