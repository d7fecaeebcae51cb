package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
	"go.pilab.hu/vident/internal/audit"
	"go.pilab.hu/vident/internal/metrics"
	"go.pilab.hu/vident/log"
	"go.pilab.hu/vident/tracing"
)

// CascadeService deletes accounts and applications together with the
// pseudonyms and tokens that hang off them.
//
// The steps are not transactional. A pseudonym created concurrently with a
// cascade may survive it; the boolean results report such mismatches.
type CascadeService struct {
	vids     *VirtualIDService
	tokens   *TokenService
	accounts domain.AccountRepository
	apps     domain.ApplicationRepository
	audit    audit.Recorder
	logger   log.Logger
}

func NewCascadeService(
	vids *VirtualIDService,
	tokens *TokenService,
	accounts domain.AccountRepository,
	apps domain.ApplicationRepository,
	opts ...Option,
) *CascadeService {
	o := newOptions(opts)
	return &CascadeService{
		vids:     vids,
		tokens:   tokens,
		accounts: accounts,
		apps:     apps,
		audit:    o.audit,
		logger:   o.logger.With(log.Fields{"component": "cascade"}),
	}
}

// DeleteAccount removes the account, the applications it owns, every
// pseudonym whose subject is the account or whose application it owns, and
// every token bound to those pseudonyms.
//
// Tokens go first: they are found through the pseudonyms, so those must still
// exist when the revocation enumerates them.
func (s *CascadeService) DeleteAccount(ctx context.Context, systemID string) (bool, error) {
	ctx, span := tracing.Start(ctx, "CascadeService.DeleteAccount", attribute.String("system_id", systemID))
	defer span.End()

	ok, err := s.accounts.Exists(ctx, systemID)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	if !ok {
		return false, serrors.NewNotFound("account " + systemID)
	}

	apps, err := s.apps.ListByDeveloper(ctx, systemID)
	if err != nil {
		return false, fmt.Errorf("failed to list applications: %w", err)
	}

	if _, err := s.tokens.RevokeForDelete(ctx, systemID); err != nil {
		return s.fail(ctx, span, "account", systemID, err)
	}

	clean := true
	for _, app := range apps {
		deleted, err := s.vids.DeleteByApp(ctx, app.ID)
		if err != nil {
			return s.fail(ctx, span, "account", systemID, err)
		}
		clean = clean && deleted
	}

	deleted, err := s.vids.DeleteByAccount(ctx, systemID)
	if err != nil {
		return s.fail(ctx, span, "account", systemID, err)
	}
	clean = clean && deleted

	for _, app := range apps {
		removed, err := s.apps.Delete(ctx, app.ID)
		if err != nil {
			return s.fail(ctx, span, "account", systemID, err)
		}
		clean = clean && removed
	}

	removed, err := s.accounts.Delete(ctx, systemID)
	if err != nil {
		return s.fail(ctx, span, "account", systemID, err)
	}
	clean = clean && removed

	return s.finish(ctx, "account", systemID, clean, log.Fields{"system_id": systemID, "applications": len(apps)}), nil
}

// DeleteApplication removes the application, its pseudonyms and their tokens.
func (s *CascadeService) DeleteApplication(ctx context.Context, appID string) (bool, error) {
	ctx, span := tracing.Start(ctx, "CascadeService.DeleteApplication", attribute.String("app_id", appID))
	defer span.End()

	ok, err := s.apps.Exists(ctx, appID)
	if err != nil {
		return false, fmt.Errorf("failed to check application: %w", err)
	}
	if !ok {
		return false, serrors.NewNotFound("application " + appID)
	}

	virtualIDs, err := s.vids.ListByAppID(ctx, appID)
	if err != nil {
		return s.fail(ctx, span, "application", appID, err)
	}

	clean, err := s.vids.DeleteByApp(ctx, appID)
	if err != nil {
		return s.fail(ctx, span, "application", appID, err)
	}

	if _, err := s.tokens.RevokeAll(ctx, virtualIDs...); err != nil {
		return s.fail(ctx, span, "application", appID, err)
	}

	removed, err := s.apps.Delete(ctx, appID)
	if err != nil {
		return s.fail(ctx, span, "application", appID, err)
	}
	clean = clean && removed

	return s.finish(ctx, "application", appID, clean, log.Fields{"app_id": appID, "virtual_ids": len(virtualIDs)}), nil
}

type statusSetter interface {
	SetStatus(code codes.Code, description string)
}

func (s *CascadeService) fail(ctx context.Context, span statusSetter, target, id string, err error) (bool, error) {
	span.SetStatus(codes.Error, err.Error())
	metrics.CascadeRunsTotal.WithLabelValues(target, "error").Inc()
	if !errors.Is(err, serrors.ErrNotFound) {
		s.logger.Error(ctx, "Cascade delete failed", err, log.Fields{"target": target})
	}
	s.audit.Record(ctx, audit.Event{Action: target + ".delete", Target: id, Error: err.Error()})
	return false, err
}

func (s *CascadeService) finish(ctx context.Context, target, id string, clean bool, fields log.Fields) bool {
	s.audit.Record(ctx, audit.Event{Action: target + ".delete", Target: id, Success: true, Details: fields})
	if !clean {
		metrics.CascadeRunsTotal.WithLabelValues(target, "partial").Inc()
		s.logger.Warn(ctx, "Cascade delete finished with mismatches", fields)
		return false
	}
	metrics.CascadeRunsTotal.WithLabelValues(target, "ok").Inc()
	s.logger.Info(ctx, "Cascade delete finished", fields)
	return true
}
