package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/log"
)

// RegisterAccountRequest carries a new account in plaintext form. SystemID
// is assigned by the caller.
type RegisterAccountRequest struct {
	SystemID    string
	UserID      string
	Name        string
	Email       string
	Password    string
	AccountType domain.AccountType
}

// AvailabilityQuery lists identifiers a new account would claim. Empty fields
// are not checked.
type AvailabilityQuery struct {
	SystemID string
	UserID   string
	Email    string
}

// AccountService keeps account records with encrypted email addresses and
// keyed password hashes.
type AccountService struct {
	accounts domain.AccountRepository
	cipher   EmailCipher
	hasher   *crypto.Hasher
	opts     *options
	logger   log.Logger
}

func NewAccountService(
	accounts domain.AccountRepository,
	cipher EmailCipher,
	hasher *crypto.Hasher,
	opts ...Option,
) *AccountService {
	o := newOptions(opts)
	return &AccountService{
		accounts: accounts,
		cipher:   cipher,
		hasher:   hasher,
		opts:     o,
		logger:   o.logger.With(log.Fields{"component": "account"}),
	}
}

func (s *AccountService) Register(ctx context.Context, req RegisterAccountRequest) (*domain.AccountProfile, error) {
	if strings.TrimSpace(req.SystemID) == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, serrors.NewValidation("system id and user id are required")
	}
	if req.Password == "" {
		return nil, serrors.NewValidation("password is required")
	}

	email, err := s.cipher.Encrypt(req.Email)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	account := &domain.Account{
		SystemID:     req.SystemID,
		UserID:       req.UserID,
		Name:         req.Name,
		Email:        email,
		PasswordHash: s.hasher.Hash(crypto.ContextPassword, req.Password),
		AccountType:  req.AccountType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Account registered", log.Fields{"system_id": account.SystemID})
	return s.profile(account, req.Email), nil
}

func (s *AccountService) profile(a *domain.Account, email string) *domain.AccountProfile {
	return &domain.AccountProfile{
		SystemID:    a.SystemID,
		UserID:      a.UserID,
		Name:        a.Name,
		Email:       email,
		AccountType: a.AccountType,
	}
}

// Get returns the account with its email decrypted.
func (s *AccountService) Get(ctx context.Context, systemID string) (*domain.AccountProfile, error) {
	account, err := s.accounts.Get(ctx, systemID)
	if err != nil {
		return nil, err
	}

	email, err := s.cipher.Decrypt(account.Email)
	if err != nil {
		s.logger.Error(ctx, "Stored email does not decrypt", err, log.Fields{"system_id": systemID})
		return nil, err
	}
	return s.profile(account, email), nil
}

// Available reports whether none of the given identifiers is taken. The
// email is compared by ciphertext, which works because encryption is
// deterministic.
func (s *AccountService) Available(ctx context.Context, q AvailabilityQuery) (bool, error) {
	if q.SystemID != "" {
		taken, err := s.accounts.Exists(ctx, q.SystemID)
		if err != nil || taken {
			return false, err
		}
	}
	if q.UserID != "" {
		taken, err := s.accounts.ExistsByUserID(ctx, q.UserID)
		if err != nil || taken {
			return false, err
		}
	}
	if q.Email != "" {
		return s.EmailAvailable(ctx, q.Email)
	}
	return true, nil
}

func (s *AccountService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	ciphertext, err := s.cipher.Encrypt(email)
	if err != nil {
		return false, err
	}
	taken, err := s.accounts.ExistsByEmail(ctx, ciphertext)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// SignIn authenticates by system ID, handle or email address and returns the
// system ID. Ambiguous identifiers and wrong passwords yield ErrNotFound.
func (s *AccountService) SignIn(ctx context.Context, id, password string) (string, error) {
	var emailCiphertext string
	if strings.Contains(id, "@") {
		if c, err := s.cipher.Encrypt(id); err == nil {
			emailCiphertext = c
		}
	}

	found, err := s.accounts.FindForSignIn(ctx, id, emailCiphertext)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if len(found) != 1 || !s.hasher.Verify(crypto.ContextPassword, password, found[0].PasswordHash) {
		s.logger.Debug(ctx, "Sign in rejected", log.Fields{"matches": len(found)})
		return "", serrors.ErrNotFound
	}

	return found[0].SystemID, nil
}

// Update applies a partial update and returns the resulting profile.
func (s *AccountService) Update(ctx context.Context, systemID string, u domain.AccountUpdate) (*domain.AccountProfile, error) {
	if u.IsEmpty() {
		return nil, serrors.NewValidation("update information is empty")
	}

	patch := domain.AccountPatch{
		UserID:      u.UserID,
		Name:        u.Name,
		AccountType: u.AccountType,
	}
	if u.Email != nil {
		c, err := s.cipher.Encrypt(*u.Email)
		if err != nil {
			return nil, err
		}
		patch.Email = &c
	}
	if u.Password != nil {
		if *u.Password == "" {
			return nil, serrors.NewValidation("password must not be empty")
		}
		h := s.hasher.Hash(crypto.ContextPassword, *u.Password)
		patch.PasswordHash = &h
	}

	if err := s.accounts.Update(ctx, systemID, patch); err != nil {
		if !errors.Is(err, serrors.ErrNotFound) && !errors.Is(err, serrors.ErrConflict) {
			s.logger.Error(ctx, "Account update failed", err, log.Fields{"system_id": systemID})
		}
		return nil, err
	}

	return s.Get(ctx, systemID)
}
