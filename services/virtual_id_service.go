package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
	"go.pilab.hu/vident/internal/metrics"
	"go.pilab.hu/vident/log"
	"go.pilab.hu/vident/tracing"
)

// VirtualIDService issues per-application pseudonyms for accounts.
type VirtualIDService struct {
	vids     domain.VirtualIDRepository
	accounts domain.AccountRepository
	apps     domain.ApplicationRepository
	cipher   EmailCipher
	opts     *options
	logger   log.Logger
}

func NewVirtualIDService(
	vids domain.VirtualIDRepository,
	accounts domain.AccountRepository,
	apps domain.ApplicationRepository,
	cipher EmailCipher,
	opts ...Option,
) *VirtualIDService {
	o := newOptions(opts)
	return &VirtualIDService{
		vids:     vids,
		accounts: accounts,
		apps:     apps,
		cipher:   cipher,
		opts:     o,
		logger:   o.logger.With(log.Fields{"component": "virtual_id"}),
	}
}

// GetOrCreate returns the pseudonym of systemID under appID, minting one on
// first use. Both the application and the account must exist.
//
// Concurrent callers converge on one row: the store rejects a second insert
// for the same pair and the loser re-reads the winner's identifier.
func (s *VirtualIDService) GetOrCreate(ctx context.Context, appID, systemID string) (string, error) {
	ctx, span := tracing.Start(ctx, "VirtualIDService.GetOrCreate", attribute.String("app_id", appID))
	defer span.End()

	if err := s.ensureExists(ctx, appID, systemID); err != nil {
		return "", err
	}

	vid, err := s.vids.FindByPair(ctx, appID, systemID)
	if err == nil {
		return vid.VirtualID, nil
	}
	if !errors.Is(err, serrors.ErrNotFound) {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to look up virtual identity: %w", err)
	}

	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		candidate := s.opts.newVirtualID()

		taken, err := s.vids.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check virtual identity: %w", err)
		}
		if taken {
			metrics.GenerationCollisionsTotal.WithLabelValues("virtual_id").Inc()
			s.logger.Warn(ctx, "Generated virtual ID already taken, retrying", log.Fields{"attempt": attempt})
			continue
		}

		err = s.vids.Insert(ctx, &domain.VirtualIdentity{
			VirtualID: candidate,
			AppID:     appID,
			SystemID:  systemID,
			CreatedAt: s.opts.now(),
		})
		if err == nil {
			metrics.VirtualIDsCreatedTotal.Inc()
			s.logger.Debug(ctx, "Virtual identity created", log.Fields{"app_id": appID})
			return candidate, nil
		}
		if !errors.Is(err, serrors.ErrConflict) {
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("failed to store virtual identity: %w", err)
		}

		// Either a concurrent caller created the pair, or the candidate was
		// taken between the check and the insert.
		existing, findErr := s.vids.FindByPair(ctx, appID, systemID)
		if findErr == nil {
			return existing.VirtualID, nil
		}
		if !errors.Is(findErr, serrors.ErrNotFound) {
			return "", fmt.Errorf("failed to look up virtual identity: %w", findErr)
		}
		metrics.GenerationCollisionsTotal.WithLabelValues("virtual_id").Inc()
	}

	err = serrors.NewRetriesExhausted("virtual identity", MaxIDAttempts)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error(ctx, "Virtual ID generation exhausted", err)
	return "", err
}

func (s *VirtualIDService) ensureExists(ctx context.Context, appID, systemID string) error {
	ok, err := s.apps.Exists(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to check application: %w", err)
	}
	if !ok {
		return serrors.NewNotFound("application " + appID)
	}

	ok, err = s.accounts.Exists(ctx, systemID)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !ok {
		return serrors.NewNotFound("account " + systemID)
	}
	return nil
}

// Resolve maps a pseudonym back to its application and account.
func (s *VirtualIDService) Resolve(ctx context.Context, virtualID string) (*domain.LinkedInformation, error) {
	ctx, span := tracing.Start(ctx, "VirtualIDService.Resolve")
	defer span.End()

	vid, err := s.vids.Get(ctx, virtualID)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.Get(ctx, vid.SystemID)
	if err != nil {
		return nil, err
	}

	email, err := s.cipher.Decrypt(account.Email)
	if err != nil {
		s.logger.Error(ctx, "Stored email does not decrypt", err, log.Fields{"system_id": account.SystemID})
		return nil, err
	}

	return &domain.LinkedInformation{
		AppID:       vid.AppID,
		SystemID:    account.SystemID,
		UserID:      account.UserID,
		Name:        account.Name,
		Email:       email,
		AccountType: account.AccountType,
	}, nil
}

func (s *VirtualIDService) ListBySystemID(ctx context.Context, systemID string) ([]string, error) {
	return s.vids.ListBySystemID(ctx, systemID)
}

func (s *VirtualIDService) ListByAppID(ctx context.Context, appID string) ([]string, error) {
	return s.vids.ListByAppID(ctx, appID)
}

// DeleteByApp removes every pseudonym of the application. It reports false
// when the number removed differs from the number counted just before, which
// means a concurrent insert raced the delete.
func (s *VirtualIDService) DeleteByApp(ctx context.Context, appID string) (bool, error) {
	return s.countThenDelete(ctx, "app_id", appID, s.vids.CountByAppID, s.vids.DeleteByAppID)
}

// DeleteByAccount removes every pseudonym whose subject is the account.
func (s *VirtualIDService) DeleteByAccount(ctx context.Context, systemID string) (bool, error) {
	return s.countThenDelete(ctx, "system_id", systemID, s.vids.CountBySystemID, s.vids.DeleteBySystemID)
}

func (s *VirtualIDService) countThenDelete(
	ctx context.Context,
	field, value string,
	count, del func(context.Context, string) (int64, error),
) (bool, error) {
	expected, err := count(ctx, value)
	if err != nil {
		return false, fmt.Errorf("failed to count virtual identities: %w", err)
	}

	deleted, err := del(ctx, value)
	if err != nil {
		return false, fmt.Errorf("failed to delete virtual identities: %w", err)
	}

	if deleted != expected {
		s.logger.Warn(ctx, "Virtual identity delete count mismatch", log.Fields{
			field:      value,
			"expected": expected,
			"deleted":  deleted,
		})
		return false, nil
	}
	return true, nil
}
