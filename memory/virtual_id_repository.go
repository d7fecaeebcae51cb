// Package memory provides in-process repositories with the same uniqueness
// contracts as the MongoDB ones. They back unit tests and single-node runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

type pairKey struct{ appID, systemID string }

type VirtualIDRepository struct {
	mu     sync.RWMutex
	byID   map[string]domain.VirtualIdentity
	byPair map[pairKey]string
}

var _ domain.VirtualIDRepository = (*VirtualIDRepository)(nil)

func NewVirtualIDRepository() *VirtualIDRepository {
	return &VirtualIDRepository{
		byID:   make(map[string]domain.VirtualIdentity),
		byPair: make(map[pairKey]string),
	}
}

func (r *VirtualIDRepository) FindByPair(_ context.Context, appID, systemID string) (*domain.VirtualIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPair[pairKey{appID, systemID}]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	vid := r.byID[id]
	return &vid, nil
}

func (r *VirtualIDRepository) Get(_ context.Context, virtualID string) (*domain.VirtualIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vid, ok := r.byID[virtualID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return &vid, nil
}

func (r *VirtualIDRepository) Exists(_ context.Context, virtualID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byID[virtualID]
	return ok, nil
}

func (r *VirtualIDRepository) Insert(_ context.Context, vid *domain.VirtualIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{vid.AppID, vid.SystemID}
	if _, ok := r.byID[vid.VirtualID]; ok {
		return fmt.Errorf("virtual identity: %w", serrors.ErrConflict)
	}
	if _, ok := r.byPair[key]; ok {
		return fmt.Errorf("virtual identity pair: %w", serrors.ErrConflict)
	}

	r.byID[vid.VirtualID] = *vid
	r.byPair[key] = vid.VirtualID
	return nil
}

func (r *VirtualIDRepository) collect(match func(domain.VirtualIdentity) bool) []string {
	ids := []string{}
	for id, vid := range r.byID {
		if match(vid) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *VirtualIDRepository) ListBySystemID(_ context.Context, systemID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(v domain.VirtualIdentity) bool { return v.SystemID == systemID }), nil
}

func (r *VirtualIDRepository) ListByAppID(_ context.Context, appID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(v domain.VirtualIdentity) bool { return v.AppID == appID }), nil
}

func (r *VirtualIDRepository) CountBySystemID(ctx context.Context, systemID string) (int64, error) {
	ids, _ := r.ListBySystemID(ctx, systemID)
	return int64(len(ids)), nil
}

func (r *VirtualIDRepository) CountByAppID(ctx context.Context, appID string) (int64, error) {
	ids, _ := r.ListByAppID(ctx, appID)
	return int64(len(ids)), nil
}

func (r *VirtualIDRepository) deleteWhere(match func(domain.VirtualIdentity) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, vid := range r.byID {
		if match(vid) {
			delete(r.byID, id)
			delete(r.byPair, pairKey{vid.AppID, vid.SystemID})
			n++
		}
	}
	return n
}

func (r *VirtualIDRepository) DeleteBySystemID(_ context.Context, systemID string) (int64, error) {
	return r.deleteWhere(func(v domain.VirtualIdentity) bool { return v.SystemID == systemID }), nil
}

func (r *VirtualIDRepository) DeleteByAppID(_ context.Context, appID string) (int64, error) {
	return r.deleteWhere(func(v domain.VirtualIdentity) bool { return v.AppID == appID }), nil
}
