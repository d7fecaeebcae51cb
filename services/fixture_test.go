package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.pilab.hu/vident/domain"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/mailcrypt"
	"go.pilab.hu/vident/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock *testClock

	vids     *memory.VirtualIDRepository
	tokens   *memory.TokenRepository
	accounts *memory.AccountRepository
	apps     *memory.ApplicationRepository

	cipher *mailcrypt.Cipher
	hasher *crypto.Hasher

	vidService     *VirtualIDService
	tokenService   *TokenService
	accountService *AccountService
	appService     *ApplicationService
	cascade        *CascadeService
}

func newTestCipher(t *testing.T) *mailcrypt.Cipher {
	t.Helper()

	key, err := mailcrypt.GenerateKey()
	require.NoError(t, err)
	table, err := mailcrypt.GenerateTable()
	require.NoError(t, err)
	c, err := mailcrypt.New(key, table)
	require.NoError(t, err)
	return c
}

func newTestHasher(t *testing.T) *crypto.Hasher {
	t.Helper()

	pepper, err := crypto.GeneratePepper()
	require.NoError(t, err)
	h, err := crypto.NewHasher(pepper)
	require.NoError(t, err)
	return h
}

// newFixture wires every service on memory repositories. Extra options are
// applied after the fixture's clock.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		clock:    &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		vids:     memory.NewVirtualIDRepository(),
		tokens:   memory.NewTokenRepository(),
		accounts: memory.NewAccountRepository(),
		apps:     memory.NewApplicationRepository(),
		cipher:   newTestCipher(t),
		hasher:   newTestHasher(t),
	}

	all := append([]Option{WithClock(f.clock.Now)}, opts...)

	f.vidService = NewVirtualIDService(f.vids, f.accounts, f.apps, f.cipher, all...)
	f.tokenService = NewTokenService(f.tokens, f.vids, f.apps, f.hasher, all...)
	f.accountService = NewAccountService(f.accounts, f.cipher, f.hasher, all...)
	f.appService = NewApplicationService(f.apps, f.accounts, f.hasher, all...)
	f.cascade = NewCascadeService(f.vidService, f.tokenService, f.accounts, f.apps, all...)

	return f
}

func (f *fixture) registerAccount(t *testing.T, systemID string) {
	t.Helper()

	_, err := f.accountService.Register(context.Background(), RegisterAccountRequest{
		SystemID:    systemID,
		UserID:      "user_" + systemID,
		Name:        "Account " + systemID,
		Email:       fmt.Sprintf("%s@example.com", systemID),
		Password:    "password01",
		AccountType: 4,
	})
	require.NoError(t, err)
}

func (f *fixture) registerApp(t *testing.T, developerID string, public bool) string {
	t.Helper()

	creds, err := f.appService.Register(context.Background(), developerID, RegisterApplicationRequest{
		Name:          "App of " + developerID,
		RedirectURIs:  []string{"https://example.com/callback"},
		PrivacyPolicy: "https://example.com/privacy",
		Public:        public,
	})
	require.NoError(t, err)
	return creds.ClientID
}

// pseudonym returns the virtual ID of systemID under appID.
func (f *fixture) pseudonym(t *testing.T, appID, systemID string) string {
	t.Helper()

	vid, err := f.vidService.GetOrCreate(context.Background(), appID, systemID)
	require.NoError(t, err)
	return vid
}

func (f *fixture) issue(t *testing.T, virtualID string, scopes ...string) *tokenPair {
	t.Helper()

	bundle, err := f.tokenService.CreateToken(context.Background(), virtualID, scopes, f.clock.Now(), domain.DefaultTTL())
	require.NoError(t, err)
	return &tokenPair{access: bundle.AccessToken, refresh: bundle.RefreshToken}
}

type tokenPair struct {
	access  string
	refresh string
}
