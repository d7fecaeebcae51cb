package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

type ApplicationRepository struct {
	mu   sync.RWMutex
	apps map[string]domain.Application
}

var _ domain.ApplicationRepository = (*ApplicationRepository)(nil)

func NewApplicationRepository() *ApplicationRepository {
	return &ApplicationRepository{apps: make(map[string]domain.Application)}
}

func cloneApp(a domain.Application) *domain.Application {
	a.RedirectURIs = slices.Clone(a.RedirectURIs)
	return &a
}

func (r *ApplicationRepository) Create(_ context.Context, app *domain.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.apps[app.ID]; ok {
		return fmt.Errorf("application: %w", serrors.ErrConflict)
	}
	r.apps[app.ID] = *cloneApp(*app)
	return nil
}

func (r *ApplicationRepository) Get(_ context.Context, appID string) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.apps[appID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return cloneApp(a), nil
}

func (r *ApplicationRepository) Exists(_ context.Context, appID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.apps[appID]
	return ok, nil
}

func (r *ApplicationRepository) OwnerOf(_ context.Context, appID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.apps[appID]
	if !ok {
		return "", serrors.ErrNotFound
	}
	return a.DeveloperID, nil
}

func (r *ApplicationRepository) ListByDeveloper(_ context.Context, developerID string) ([]*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apps := []*domain.Application{}
	for _, a := range r.apps {
		if a.DeveloperID == developerID {
			apps = append(apps, cloneApp(a))
		}
	}
	slices.SortFunc(apps, func(x, y *domain.Application) int { return strings.Compare(x.ID, y.ID) })
	return apps, nil
}

func (r *ApplicationRepository) UpdateSecret(_ context.Context, appID, secretHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.apps[appID]
	if !ok {
		return serrors.ErrNotFound
	}
	a.SecretHash = secretHash
	r.apps[appID] = a
	return nil
}

func (r *ApplicationRepository) Delete(_ context.Context, appID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.apps[appID]; !ok {
		return false, nil
	}
	delete(r.apps, appID)
	return true, nil
}
