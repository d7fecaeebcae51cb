package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
	"go.pilab.hu/vident/internal/audit"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/internal/metrics"
	"go.pilab.hu/vident/log"
)

type RegisterApplicationRequest struct {
	Name           string
	Description    string
	RedirectURIs   []string
	PrivacyPolicy  string
	TermsOfService string
	Public         bool
}

// ApplicationService registers and authenticates client applications.
type ApplicationService struct {
	apps     domain.ApplicationRepository
	accounts domain.AccountRepository
	hasher   *crypto.Hasher
	opts     *options
	logger   log.Logger
}

func NewApplicationService(
	apps domain.ApplicationRepository,
	accounts domain.AccountRepository,
	hasher *crypto.Hasher,
	opts ...Option,
) *ApplicationService {
	o := newOptions(opts)
	return &ApplicationService{
		apps:     apps,
		accounts: accounts,
		hasher:   hasher,
		opts:     o,
		logger:   o.logger.With(log.Fields{"component": "application"}),
	}
}

// Register creates an application owned by developerID. Confidential
// applications get a secret, returned only here.
func (s *ApplicationService) Register(
	ctx context.Context,
	developerID string,
	req RegisterApplicationRequest,
) (*domain.ApplicationCredentials, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, serrors.NewValidation("application name is required")
	}
	if len(req.RedirectURIs) == 0 {
		return nil, serrors.NewValidation("at least one redirect uri is required")
	}

	ok, err := s.accounts.Exists(ctx, developerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check developer: %w", err)
	}
	if !ok {
		return nil, serrors.NewNotFound("account " + developerID)
	}

	var secret, secretHash string
	if !req.Public {
		secret, err = s.opts.newSecret(ClientSecretLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate client secret: %w", err)
		}
		secretHash = s.hasher.Hash(crypto.ContextClientSecret, secret)
	}

	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		app := &domain.Application{
			ID:             s.opts.newAppID(),
			Name:           req.Name,
			Description:    req.Description,
			DeveloperID:    developerID,
			RedirectURIs:   req.RedirectURIs,
			PrivacyPolicy:  req.PrivacyPolicy,
			TermsOfService: req.TermsOfService,
			Public:         req.Public,
			SecretHash:     secretHash,
			CreatedAt:      s.opts.now(),
		}

		err := s.apps.Create(ctx, app)
		if err == nil {
			s.logger.Info(ctx, "Application registered", log.Fields{"app_id": app.ID, "public": app.Public})
			return &domain.ApplicationCredentials{ClientID: app.ID, ClientSecret: secret}, nil
		}
		if !errors.Is(err, serrors.ErrConflict) {
			return nil, fmt.Errorf("failed to create application: %w", err)
		}
		metrics.GenerationCollisionsTotal.WithLabelValues("application_id").Inc()
	}

	err = serrors.NewRetriesExhausted("application id", MaxIDAttempts)
	s.logger.Error(ctx, "Application ID generation exhausted", err)
	return nil, err
}

func (s *ApplicationService) Get(ctx context.Context, appID string) (*domain.Application, error) {
	return s.apps.Get(ctx, appID)
}

func (s *ApplicationService) ListByDeveloper(ctx context.Context, developerID string) ([]*domain.Application, error) {
	return s.apps.ListByDeveloper(ctx, developerID)
}

// RegenerateSecret replaces the secret of a confidential application.
// Public applications have no secret to replace.
func (s *ApplicationService) RegenerateSecret(ctx context.Context, appID string) (*domain.ApplicationCredentials, error) {
	app, err := s.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.Public {
		return nil, serrors.NewPolicyViolation("public applications have no client secret")
	}

	secret, err := s.opts.newSecret(ClientSecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client secret: %w", err)
	}
	if err := s.apps.UpdateSecret(ctx, appID, s.hasher.Hash(crypto.ContextClientSecret, secret)); err != nil {
		s.opts.audit.Record(ctx, audit.Event{Action: "application.rotate_secret", Target: appID, Error: err.Error()})
		return nil, err
	}
	s.opts.audit.Record(ctx, audit.Event{Action: "application.rotate_secret", Target: appID, Success: true})

	s.logger.Info(ctx, "Application secret regenerated", log.Fields{"app_id": appID})
	return &domain.ApplicationCredentials{ClientID: appID, ClientSecret: secret}, nil
}

// Authenticate verifies a confidential application's secret and returns the
// developer's system ID. Public applications never authenticate.
func (s *ApplicationService) Authenticate(ctx context.Context, appID, secret string) (string, error) {
	app, err := s.apps.Get(ctx, appID)
	if err != nil {
		return "", err
	}
	if app.Public || app.SecretHash == "" || !s.hasher.Verify(crypto.ContextClientSecret, secret, app.SecretHash) {
		s.logger.Debug(ctx, "Application authentication rejected", log.Fields{"app_id": appID})
		return "", serrors.ErrNotFound
	}
	return app.DeveloperID, nil
}
