package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"go.pilab.hu/vident/cache"
	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/internal/metrics"
	"go.pilab.hu/vident/log"
	"go.pilab.hu/vident/tracing"
)

// TokenService issues, checks, rotates and revokes opaque bearer tokens.
// Secrets are only ever stored as keyed hashes.
type TokenService struct {
	tokens domain.TokenRepository
	vids   domain.VirtualIDRepository
	apps   domain.ApplicationRepository
	hasher *crypto.Hasher
	cache  cache.TokenCache
	opts   *options
	logger log.Logger
}

func NewTokenService(
	tokens domain.TokenRepository,
	vids domain.VirtualIDRepository,
	apps domain.ApplicationRepository,
	hasher *crypto.Hasher,
	opts ...Option,
) *TokenService {
	o := newOptions(opts)
	return &TokenService{
		tokens: tokens,
		vids:   vids,
		apps:   apps,
		hasher: hasher,
		cache:  o.tokenCache,
		opts:   o,
		logger: o.logger.With(log.Fields{"component": "token"}),
	}
}

type checkConfig struct {
	returnAccountID bool
}

// CheckOption modifies what Check returns.
type CheckOption func(*checkConfig)

// ReturnAccountID makes Check return the account system ID instead of the
// virtual ID bound to the token.
func ReturnAccountID() CheckOption {
	return func(c *checkConfig) { c.returnAccountID = true }
}

// CreateToken mints a token pair for virtualID. The plaintext secrets are in
// the returned bundle and nowhere else.
func (s *TokenService) CreateToken(
	ctx context.Context,
	virtualID string,
	scopes []string,
	now time.Time,
	ttl domain.TTLConfig,
) (*domain.TokenBundle, error) {
	ctx, span := tracing.Start(ctx, "TokenService.CreateToken")
	defer span.End()

	ok, err := s.vids.Exists(ctx, virtualID)
	if err != nil {
		return nil, fmt.Errorf("failed to check virtual identity: %w", err)
	}
	if !ok {
		return nil, serrors.NewNotFound("virtual identity " + virtualID)
	}

	scopes = domain.NormalizeScopes(scopes)
	now = now.UTC()

	for attempt := 1; attempt <= MaxSecretAttempts; attempt++ {
		access, err := s.opts.newSecret(SecretLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate access secret: %w", err)
		}
		refresh, err := s.opts.newSecret(SecretLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate refresh secret: %w", err)
		}

		token := &domain.Token{
			AccessHash:       s.hasher.Hash(crypto.ContextAccessToken, access),
			RefreshHash:      s.hasher.Hash(crypto.ContextRefreshToken, refresh),
			VirtualID:        virtualID,
			Scopes:           scopes,
			AccessExpiresAt:  now.Add(ttl.Access),
			RefreshExpiresAt: now.Add(ttl.Refresh),
			CreatedAt:        now,
		}

		taken, err := s.tokens.HashTaken(ctx, token.AccessHash, token.RefreshHash)
		if err != nil {
			return nil, fmt.Errorf("failed to check token hashes: %w", err)
		}
		if !taken {
			err = s.tokens.Insert(ctx, token)
			if err == nil {
				metrics.TokensCreatedTotal.Inc()
				s.logger.Debug(ctx, "Token created", log.Fields{
					"token":  log.HashPrefix(token.AccessHash),
					"scopes": scopes,
				})
				return &domain.TokenBundle{
					TokenType:    domain.TokenTypeBearer,
					AccessToken:  access,
					RefreshToken: refresh,
					ExpiresAt: domain.TokenExpiry{
						AccessToken:  token.AccessExpiresAt,
						RefreshToken: token.RefreshExpiresAt,
					},
				}, nil
			}
			if !errors.Is(err, serrors.ErrConflict) {
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("failed to store token: %w", err)
			}
		}

		metrics.GenerationCollisionsTotal.WithLabelValues("token").Inc()
		s.logger.Warn(ctx, "Token secret collision, retrying", log.Fields{"attempt": attempt})
	}

	err = serrors.NewRetriesExhausted("token secret", MaxSecretAttempts)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error(ctx, "Token generation exhausted", err)
	return nil, err
}

// Check validates accessSecret and, when requiredScopes is not empty, that
// the token grants all of them. It returns the bound virtual ID, or the
// account ID with ReturnAccountID.
//
// Unknown and expired tokens yield ErrNotFound; a live token that lacks a
// scope yields ErrInsufficientScope, which also matches ErrNotFound.
func (s *TokenService) Check(
	ctx context.Context,
	accessSecret string,
	requiredScopes []string,
	opts ...CheckOption,
) (string, error) {
	ctx, span := tracing.Start(ctx, "TokenService.Check")
	defer span.End()

	var cfg checkConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	hash := s.hasher.Hash(crypto.ContextAccessToken, accessSecret)
	now := s.opts.now()

	entry, err := s.lookup(ctx, hash, now)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			s.deny(ctx, hash, "unknown")
		}
		return "", err
	}

	if !now.Before(entry.AccessExpiresAt) {
		s.deny(ctx, hash, "expired")
		return "", serrors.ErrNotFound
	}

	if !domain.ScopesSatisfy(entry.Scopes, requiredScopes, s.opts.supervisor) {
		s.deny(ctx, hash, "scope")
		return "", serrors.ErrInsufficientScope
	}

	if !cfg.returnAccountID {
		return entry.VirtualID, nil
	}

	if entry.SystemID == "" {
		vid, err := s.vids.Get(ctx, entry.VirtualID)
		if err != nil {
			if errors.Is(err, serrors.ErrNotFound) {
				s.deny(ctx, hash, "orphaned")
			}
			return "", err
		}
		entry.SystemID = vid.SystemID
		s.remember(ctx, hash, entry)
	}

	return entry.SystemID, nil
}

func (s *TokenService) deny(ctx context.Context, hash, reason string) {
	metrics.CheckDeniedTotal.WithLabelValues(reason).Inc()
	s.logger.Debug(ctx, "Token check denied", log.Fields{
		"token":  log.HashPrefix(hash),
		"reason": reason,
	})
}

// lookup reads the token through the cache. Only live tokens are cached.
func (s *TokenService) lookup(ctx context.Context, hash string, now time.Time) (*cache.Entry, error) {
	if s.cache != nil {
		entry, err := s.cache.Get(ctx, hash)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn(ctx, "Token cache read failed", log.Fields{"error": err.Error()})
		}
	}

	token, err := s.tokens.FindByAccessHash(ctx, hash)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	entry := &cache.Entry{
		VirtualID:       token.VirtualID,
		Scopes:          token.Scopes,
		AccessExpiresAt: token.AccessExpiresAt,
	}
	if !token.AccessExpired(now) {
		s.remember(ctx, hash, entry)
	}
	return entry, nil
}

func (s *TokenService) remember(ctx context.Context, hash string, entry *cache.Entry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, hash, entry); err != nil {
		s.logger.Warn(ctx, "Token cache write failed", log.Fields{"error": err.Error()})
	}
}

func (s *TokenService) evict(ctx context.Context, hash string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, hash); err != nil {
		s.logger.Warn(ctx, "Token cache eviction failed", log.Fields{"error": err.Error()})
	}
}

func (s *TokenService) clearCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn(ctx, "Token cache clear failed", log.Fields{"error": err.Error()})
	}
}

// Refresh rotates a token pair: the old row is removed and a new pair with
// the same virtual ID and scopes is minted. A refresh secret works once.
func (s *TokenService) Refresh(
	ctx context.Context,
	refreshSecret string,
	now time.Time,
	ttl domain.TTLConfig,
) (*domain.TokenBundle, error) {
	ctx, span := tracing.Start(ctx, "TokenService.Refresh")
	defer span.End()

	hash := s.hasher.Hash(crypto.ContextRefreshToken, refreshSecret)

	old, err := s.tokens.FindByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if old.RefreshExpired(now) {
		s.logger.Debug(ctx, "Refresh with expired token", log.Fields{"token": log.HashPrefix(old.AccessHash)})
		return nil, serrors.ErrNotFound
	}

	// Only the caller whose delete removed the row may mint the successor.
	deleted, err := s.tokens.DeleteByRefreshHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to delete token: %w", err)
	}
	s.evict(ctx, old.AccessHash)
	if deleted == 0 {
		return nil, serrors.ErrNotFound
	}

	bundle, err := s.CreateToken(ctx, old.VirtualID, old.Scopes, now, ttl)
	if err != nil {
		return nil, err
	}

	metrics.TokensRefreshedTotal.Inc()
	return bundle, nil
}

// Revoke deletes the token identified by its access secret. It reports
// whether a token was removed.
func (s *TokenService) Revoke(ctx context.Context, accessSecret string) (bool, error) {
	hash := s.hasher.Hash(crypto.ContextAccessToken, accessSecret)

	deleted, err := s.tokens.DeleteByAccessHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	s.evict(ctx, hash)

	metrics.TokensRevokedTotal.Add(float64(deleted))
	return deleted > 0, nil
}

// RevokeAll deletes every token bound to any of the virtual IDs. It reports
// true only if at least one row was removed.
func (s *TokenService) RevokeAll(ctx context.Context, virtualIDs ...string) (bool, error) {
	if len(virtualIDs) == 0 {
		return false, nil
	}

	ctx, span := tracing.Start(ctx, "TokenService.RevokeAll")
	defer span.End()

	deleted, err := s.tokens.DeleteByVirtualIDs(ctx, virtualIDs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to revoke tokens: %w", err)
	}
	if deleted > 0 {
		s.clearCache(ctx)
	}

	metrics.TokensRevokedTotal.Add(float64(deleted))
	s.logger.Info(ctx, "Tokens revoked", log.Fields{"virtual_ids": len(virtualIDs), "deleted": deleted})
	return deleted > 0, nil
}

// RevokeForDelete deletes every token reachable from the account: those
// issued to it under any application, and those issued to anyone under an
// application the account owns as developer.
func (s *TokenService) RevokeForDelete(ctx context.Context, systemID string) (bool, error) {
	ctx, span := tracing.Start(ctx, "TokenService.RevokeForDelete")
	defer span.End()

	virtualIDs, err := s.reachableVirtualIDs(ctx, systemID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	return s.RevokeAll(ctx, virtualIDs...)
}

func (s *TokenService) reachableVirtualIDs(ctx context.Context, systemID string) ([]string, error) {
	virtualIDs, err := s.vids.ListBySystemID(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list virtual identities: %w", err)
	}

	apps, err := s.apps.ListByDeveloper(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	for _, app := range apps {
		ids, err := s.vids.ListByAppID(ctx, app.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list virtual identities: %w", err)
		}
		virtualIDs = append(virtualIDs, ids...)
	}

	return virtualIDs, nil
}

// SweepExpired removes every token whose refresh secret has expired. Tokens
// with only an expired access secret stay, since they can still be refreshed.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.Start(ctx, "TokenService.SweepExpired")
	defer span.End()

	deleted, err := s.tokens.DeleteRefreshExpired(ctx, s.opts.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to sweep tokens: %w", err)
	}
	if deleted > 0 {
		s.clearCache(ctx)
	}

	metrics.TokensSweptTotal.Add(float64(deleted))
	s.logger.Info(ctx, "Expired tokens swept", log.Fields{"deleted": deleted})
	return deleted, nil
}
