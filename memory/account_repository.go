package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

var _ domain.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]domain.Account)}
}

// taken expects the lock to be held. skip excludes the account being updated.
func (r *AccountRepository) taken(skip, userID, email string) bool {
	for id, a := range r.accounts {
		if id == skip {
			continue
		}
		if (userID != "" && a.UserID == userID) || (email != "" && a.Email == email) {
			return true
		}
	}
	return false
}

func (r *AccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.SystemID]; ok || r.taken("", account.UserID, account.Email) {
		return fmt.Errorf("account: %w", serrors.ErrConflict)
	}
	r.accounts[account.SystemID] = *account
	return nil
}

func (r *AccountRepository) Get(_ context.Context, systemID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[systemID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return &a, nil
}

func (r *AccountRepository) Exists(_ context.Context, systemID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.accounts[systemID]
	return ok, nil
}

func (r *AccountRepository) FindForSignIn(_ context.Context, id, emailCiphertext string) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := []*domain.Account{}
	for _, a := range r.accounts {
		if a.SystemID == id || a.UserID == id || (emailCiphertext != "" && a.Email == emailCiphertext) {
			found = append(found, &a)
		}
	}
	return found, nil
}

func (r *AccountRepository) ExistsByUserID(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.taken("", userID, ""), nil
}

func (r *AccountRepository) ExistsByEmail(_ context.Context, emailCiphertext string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.taken("", "", emailCiphertext), nil
}

func (r *AccountRepository) Update(_ context.Context, systemID string, patch domain.AccountPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[systemID]
	if !ok {
		return serrors.ErrNotFound
	}

	var userID, email string
	if patch.UserID != nil {
		userID = *patch.UserID
	}
	if patch.Email != nil {
		email = *patch.Email
	}
	if r.taken(systemID, userID, email) {
		return fmt.Errorf("account: %w", serrors.ErrConflict)
	}

	if patch.UserID != nil {
		a.UserID = *patch.UserID
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Email != nil {
		a.Email = *patch.Email
	}
	if patch.PasswordHash != nil {
		a.PasswordHash = *patch.PasswordHash
	}
	if patch.AccountType != nil {
		a.AccountType = *patch.AccountType
	}
	a.UpdatedAt = time.Now().UTC()

	r.accounts[systemID] = a
	return nil
}

func (r *AccountRepository) Delete(_ context.Context, systemID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[systemID]; !ok {
		return false, nil
	}
	delete(r.accounts, systemID)
	return true, nil
}
