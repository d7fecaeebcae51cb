package services

import (
	"context"
	"time"

	"go.pilab.hu/vident/cache"
	"go.pilab.hu/vident/internal/audit"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/log"
)

// EmailCipher is the searchable email encryption used for account records.
// mailcrypt.Cipher implements it.
type EmailCipher interface {
	Encrypt(email string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Authorizer resolves a presented access secret against required scopes.
// Components that guard operations depend on this rather than on the full
// TokenService.
type Authorizer interface {
	Check(ctx context.Context, accessSecret string, requiredScopes []string, opts ...CheckOption) (string, error)
}

var _ Authorizer = (*TokenService)(nil)

const (
	// MaxIDAttempts bounds virtual and application ID generation.
	MaxIDAttempts = 5
	// MaxSecretAttempts bounds token secret generation.
	MaxSecretAttempts = 5

	// SecretLength is the length of access and refresh secrets.
	SecretLength = 256
	// ClientSecretLength is the length of confidential application secrets.
	ClientSecretLength = 64

	DefaultSupervisorScope = "supervisor"

	virtualIDPrefix   = "vid-"
	applicationPrefix = "app-"
)

// Option configures the services. Each constructor reads the fields it needs.
type Option func(*options)

type options struct {
	logger       log.Logger
	now          func() time.Time
	newVirtualID func() string
	newAppID     func() string
	newSecret    func(n int) (string, error)
	tokenCache   cache.TokenCache
	supervisor   string
	audit        audit.Recorder
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:       log.Nop(),
		now:          func() time.Time { return time.Now().UTC() },
		newVirtualID: func() string { return crypto.PrefixedID(virtualIDPrefix) },
		newAppID:     func() string { return crypto.PrefixedID(applicationPrefix) },
		newSecret:    crypto.RandomAlphanumeric,
		supervisor:   DefaultSupervisorScope,
		audit:        audit.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithVirtualIDGenerator(fn func() string) Option {
	return func(o *options) { o.newVirtualID = fn }
}

func WithApplicationIDGenerator(fn func() string) Option {
	return func(o *options) { o.newAppID = fn }
}

// WithSecretGenerator replaces the generator of token and client secrets.
func WithSecretGenerator(fn func(n int) (string, error)) Option {
	return func(o *options) { o.newSecret = fn }
}

// WithTokenCache puts a lookup cache in front of the token store.
func WithTokenCache(c cache.TokenCache) Option {
	return func(o *options) { o.tokenCache = c }
}

func WithSupervisorScope(scope string) Option {
	return func(o *options) { o.supervisor = scope }
}

// WithAuditRecorder sends cascade deletes and secret rotations to r.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(o *options) { o.audit = r }
}
