package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

func TestVirtualIDRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewVirtualIDRepository()

	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-1", AppID: "app-a", SystemID: "acc-x"}))
	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-2", AppID: "app-b", SystemID: "acc-x"}))
	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-3", AppID: "app-a", SystemID: "acc-y"}))

	assert.ErrorIs(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-9", AppID: "app-a", SystemID: "acc-x"}), serrors.ErrConflict)
	assert.ErrorIs(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-1", AppID: "app-c", SystemID: "acc-z"}), serrors.ErrConflict)

	vid, err := repo.FindByPair(ctx, "app-a", "acc-y")
	require.NoError(t, err)
	assert.Equal(t, "vid-3", vid.VirtualID)

	_, err = repo.Get(ctx, "vid-9")
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	ids, err := repo.ListBySystemID(ctx, "acc-x")
	require.NoError(t, err)
	assert.Equal(t, []string{"vid-1", "vid-2"}, ids)

	n, err := repo.CountByAppID(ctx, "app-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err := repo.DeleteByAppID(ctx, "app-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	// the freed pair can be issued again
	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-4", AppID: "app-a", SystemID: "acc-x"}))

	deleted, err = repo.DeleteBySystemID(ctx, "acc-x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	ok, err := repo.Exists(ctx, "vid-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVirtualIDRepository_ConcurrentPairInsert(t *testing.T) {
	ctx := context.Background()
	repo := NewVirtualIDRepository()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(ctx, &domain.VirtualIdentity{
				VirtualID: "vid-" + string(rune('a'+i)),
				AppID:     "app",
				SystemID:  "acc",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	n, _ := repo.CountBySystemID(ctx, "acc")
	assert.EqualValues(t, 1, n)
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok := func(access, refresh, vid string, refreshExp time.Time) *domain.Token {
		return &domain.Token{
			AccessHash:       access,
			RefreshHash:      refresh,
			VirtualID:        vid,
			Scopes:           []string{"read"},
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: refreshExp,
		}
	}

	require.NoError(t, repo.Insert(ctx, tok("a1", "r1", "vid-1", now.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, tok("a2", "r2", "vid-2", now)))
	require.NoError(t, repo.Insert(ctx, tok("a3", "r3", "vid-2", now.Add(-time.Hour))))

	assert.ErrorIs(t, repo.Insert(ctx, tok("a1", "rx", "vid-1", now)), serrors.ErrConflict)
	assert.ErrorIs(t, repo.Insert(ctx, tok("ax", "r2", "vid-1", now)), serrors.ErrConflict)

	taken, err := repo.HashTaken(ctx, "zz", "r3")
	require.NoError(t, err)
	assert.True(t, taken)

	got, err := repo.FindByRefreshHash(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessHash)

	got.Scopes[0] = "admin"
	again, err := repo.FindByAccessHash(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, again.Scopes)

	n, err := repo.DeleteRefreshExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteByRefreshHash(ctx, "r1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.DeleteByRefreshHash(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, repo.Len())
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	require.NoError(t, repo.Create(ctx, &domain.Account{SystemID: "acc-1", UserID: "alice", Email: "c1"}))
	require.NoError(t, repo.Create(ctx, &domain.Account{SystemID: "acc-2", UserID: "bob", Email: "c2"}))
	assert.ErrorIs(t, repo.Create(ctx, &domain.Account{SystemID: "acc-3", UserID: "bob", Email: "c3"}), serrors.ErrConflict)

	found, err := repo.FindForSignIn(ctx, "acc-1", "c2")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	email := "c2"
	assert.ErrorIs(t, repo.Update(ctx, "acc-1", domain.AccountPatch{Email: &email}), serrors.ErrConflict)

	// re-setting one's own handle is not a conflict
	own := "alice"
	require.NoError(t, repo.Update(ctx, "acc-1", domain.AccountPatch{UserID: &own}))

	ok, err := repo.Delete(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplicationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewApplicationRepository()

	require.NoError(t, repo.Create(ctx, &domain.Application{ID: "app-2", DeveloperID: "acc-1"}))
	require.NoError(t, repo.Create(ctx, &domain.Application{ID: "app-1", DeveloperID: "acc-1"}))
	assert.ErrorIs(t, repo.Create(ctx, &domain.Application{ID: "app-1"}), serrors.ErrConflict)

	apps, err := repo.ListByDeveloper(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "app-1", apps[0].ID)

	owner, err := repo.OwnerOf(ctx, "app-2")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", owner)

	assert.ErrorIs(t, repo.UpdateSecret(ctx, "app-9", "h"), serrors.ErrNotFound)
}
