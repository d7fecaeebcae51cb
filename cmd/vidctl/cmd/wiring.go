package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"go.pilab.hu/vident/cache"
	cacheredis "go.pilab.hu/vident/cache/redis"
	"go.pilab.hu/vident/config"
	"go.pilab.hu/vident/internal/audit"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/log"
	"go.pilab.hu/vident/mailcrypt"
	"go.pilab.hu/vident/mongodb"
	"go.pilab.hu/vident/services"
)

// stack is the fully wired identity core behind one command invocation.
type stack struct {
	VirtualIDs   *services.VirtualIDService
	Tokens       *services.TokenService
	Cascade      *services.CascadeService
	Accounts     *services.AccountService
	Applications *services.ApplicationService

	client  *mongo.Client
	closers []func(context.Context) error
	logger  log.Logger
}

// openCrypto loads the email cipher and the keyed hasher, creating missing
// key material on first use.
func openCrypto(c config.CryptoConfig) (*mailcrypt.Cipher, *crypto.Hasher, error) {
	cipher, err := mailcrypt.Open(c.KeyFile, c.TableFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open email cipher: %w", err)
	}
	pepper, err := crypto.LoadOrCreatePepper(c.PepperFile)
	if err != nil {
		return nil, nil, err
	}
	hasher, err := crypto.NewHasher(pepper)
	if err != nil {
		return nil, nil, err
	}
	return cipher, hasher, nil
}

// newTokenCache builds the configured lookup cache. It returns nil for the
// "none" backend.
func newTokenCache(ctx context.Context, cfg *config.Config) (cache.TokenCache, func(context.Context) error, error) {
	switch cfg.Cache.Backend {
	case "memory":
		c := cache.NewMemoryTokenCache(cfg.Cache.TTL)
		return c, func(context.Context) error { return c.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		c := cacheredis.NewTokenCache(client, cfg.Redis.Prefix, cfg.Cache.TTL)
		return c, func(context.Context) error { return client.Close() }, nil
	default:
		return nil, nil, nil
	}
}

func newStack(ctx context.Context, cfg *config.Config, logger log.Logger) (*stack, error) {
	cipher, hasher, err := openCrypto(cfg.Crypto)
	if err != nil {
		return nil, err
	}

	client, db, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		return nil, err
	}
	s := &stack{client: client, logger: logger}

	repos, err := mongodb.NewRepositories(ctx, db)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to prepare repositories: %w", err)
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithSupervisorScope(cfg.Token.SupervisorScope),
		services.WithAuditRecorder(audit.NewZerologRecorder(os.Stderr)),
	}
	tokenCache, closeCache, err := newTokenCache(ctx, cfg)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	if tokenCache != nil {
		opts = append(opts, services.WithTokenCache(tokenCache))
		s.closers = append(s.closers, closeCache)
	}

	s.VirtualIDs = services.NewVirtualIDService(repos.VirtualIDs, repos.Accounts, repos.Applications, cipher, opts...)
	s.Tokens = services.NewTokenService(repos.Tokens, repos.VirtualIDs, repos.Applications, hasher, opts...)
	s.Cascade = services.NewCascadeService(s.VirtualIDs, s.Tokens, repos.Accounts, repos.Applications, opts...)
	s.Accounts = services.NewAccountService(repos.Accounts, cipher, hasher, opts...)
	s.Applications = services.NewApplicationService(repos.Applications, repos.Accounts, hasher, opts...)
	return s, nil
}

// Close releases the cache and the database connection.
func (s *stack) Close(ctx context.Context) {
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			s.logger.Warn(ctx, "Failed to close resource", log.Fields{"error": err.Error()})
		}
	}
	mongodb.Close(ctx, s.client, s.logger)
}

// withStack runs fn against a freshly wired stack and closes it afterwards.
func withStack(ctx context.Context, fn func(*stack) error) error {
	s, err := newStack(ctx, appConfig, appLogger)
	if err != nil {
		return err
	}
	defer s.Close(context.WithoutCancel(ctx))
	return fn(s)
}
