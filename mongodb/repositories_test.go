package mongodb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
	"go.pilab.hu/vident/mongodb/testutil"
)

func setupRepositories(t *testing.T) *Repositories {
	t.Helper()

	db := testutil.SetupTestMongoDB(t, "vident_repo_test")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repos, err := NewRepositories(ctx, db)
	require.NoError(t, err)

	return repos
}

func TestVirtualIDRepository_Integration(t *testing.T) {
	repos := setupRepositories(t)
	repo := repos.VirtualIDs
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-1", AppID: "app-a", SystemID: "acc-x", CreatedAt: now}))
	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-2", AppID: "app-b", SystemID: "acc-x", CreatedAt: now}))
	require.NoError(t, repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-3", AppID: "app-a", SystemID: "acc-y", CreatedAt: now}))

	t.Run("pair is unique", func(t *testing.T) {
		err := repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-9", AppID: "app-a", SystemID: "acc-x"})
		assert.ErrorIs(t, err, serrors.ErrConflict)
	})

	t.Run("virtual id is unique", func(t *testing.T) {
		err := repo.Insert(ctx, &domain.VirtualIdentity{VirtualID: "vid-1", AppID: "app-c", SystemID: "acc-z"})
		assert.ErrorIs(t, err, serrors.ErrConflict)
	})

	t.Run("lookups", func(t *testing.T) {
		vid, err := repo.FindByPair(ctx, "app-a", "acc-x")
		require.NoError(t, err)
		assert.Equal(t, "vid-1", vid.VirtualID)
		assert.True(t, vid.CreatedAt.Equal(now))

		_, err = repo.FindByPair(ctx, "app-b", "acc-y")
		assert.ErrorIs(t, err, serrors.ErrNotFound)

		got, err := repo.Get(ctx, "vid-3")
		require.NoError(t, err)
		assert.Equal(t, "acc-y", got.SystemID)

		ok, err := repo.Exists(ctx, "vid-2")
		require.NoError(t, err)
		assert.True(t, ok)

		ids, err := repo.ListBySystemID(ctx, "acc-x")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"vid-1", "vid-2"}, ids)

		ids, err = repo.ListByAppID(ctx, "app-a")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"vid-1", "vid-3"}, ids)

		ids, err = repo.ListByAppID(ctx, "app-none")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := repo.CountBySystemID(ctx, "acc-x")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		deleted, err := repo.DeleteBySystemID(ctx, "acc-x")
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		deleted, err = repo.DeleteByAppID(ctx, "app-a")
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		n, err = repo.CountByAppID(ctx, "app-a")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestVirtualIDRepository_ConcurrentPairInsert(t *testing.T) {
	repos := setupRepositories(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repos.VirtualIDs.Insert(ctx, &domain.VirtualIdentity{
				VirtualID: "vid-race-" + string(rune('a'+i)),
				AppID:     "app-race",
				SystemID:  "acc-race",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, serrors.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestTokenRepository_Integration(t *testing.T) {
	repos := setupRepositories(t)
	repo := repos.Tokens
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	tok := func(access, refresh, vid string, refreshExp time.Time) *domain.Token {
		return &domain.Token{
			AccessHash:       access,
			RefreshHash:      refresh,
			VirtualID:        vid,
			Scopes:           []string{"read"},
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: refreshExp,
			CreatedAt:        now,
		}
	}

	require.NoError(t, repo.Insert(ctx, tok("a1", "r1", "vid-1", now.Add(24*time.Hour))))
	require.NoError(t, repo.Insert(ctx, tok("a2", "r2", "vid-2", now.Add(-time.Minute))))
	require.NoError(t, repo.Insert(ctx, tok("a3", "r3", "vid-3", now)))

	assert.ErrorIs(t, repo.Insert(ctx, tok("a1", "rx", "vid-1", now)), serrors.ErrConflict)
	assert.ErrorIs(t, repo.Insert(ctx, tok("ax", "r1", "vid-1", now)), serrors.ErrConflict)

	taken, err := repo.HashTaken(ctx, "ax", "r2")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.HashTaken(ctx, "ax", "rx")
	require.NoError(t, err)
	assert.False(t, taken)

	got, err := repo.FindByAccessHash(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "vid-1", got.VirtualID)
	assert.Equal(t, []string{"read"}, got.Scopes)

	got, err = repo.FindByRefreshHash(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessHash)

	_, err = repo.FindByAccessHash(ctx, "nope")
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	swept, err := repo.DeleteRefreshExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, swept)

	n, err := repo.DeleteByVirtualIDs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.DeleteByVirtualIDs(ctx, []string{"vid-1", "vid-x"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.DeleteByRefreshHash(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAccountRepository_Integration(t *testing.T) {
	repos := setupRepositories(t)
	repo := repos.Accounts
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Account{SystemID: "acc-1", UserID: "alice", Email: "c1", Name: "Alice"}))
	require.NoError(t, repo.Create(ctx, &domain.Account{SystemID: "acc-2", UserID: "bob", Email: "c2", Name: "Bob"}))

	assert.ErrorIs(t, repo.Create(ctx, &domain.Account{SystemID: "acc-3", UserID: "alice", Email: "c3"}), serrors.ErrConflict)
	assert.ErrorIs(t, repo.Create(ctx, &domain.Account{SystemID: "acc-3", UserID: "carol", Email: "c1"}), serrors.ErrConflict)

	ok, err := repo.ExistsByEmail(ctx, "c2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExistsByUserID(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindForSignIn(ctx, "alice", "c2")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	name := "Alicia"
	require.NoError(t, repo.Update(ctx, "acc-1", domain.AccountPatch{Name: &name}))
	acc, err := repo.Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", acc.Name)
	assert.Equal(t, "alice", acc.UserID)

	taken := "bob"
	assert.ErrorIs(t, repo.Update(ctx, "acc-1", domain.AccountPatch{UserID: &taken}), serrors.ErrConflict)
	assert.ErrorIs(t, repo.Update(ctx, "acc-9", domain.AccountPatch{Name: &name}), serrors.ErrNotFound)

	deleted, err := repo.Delete(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.Get(ctx, "acc-1")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestApplicationRepository_Integration(t *testing.T) {
	repos := setupRepositories(t)
	repo := repos.Applications
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Application{ID: "app-1", Name: "One", DeveloperID: "acc-1", SecretHash: "h1"}))
	require.NoError(t, repo.Create(ctx, &domain.Application{ID: "app-2", Name: "Two", DeveloperID: "acc-1", Public: true}))
	assert.ErrorIs(t, repo.Create(ctx, &domain.Application{ID: "app-1"}), serrors.ErrConflict)

	owner, err := repo.OwnerOf(ctx, "app-2")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", owner)

	_, err = repo.OwnerOf(ctx, "app-9")
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	apps, err := repo.ListByDeveloper(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "app-1", apps[0].ID)

	require.NoError(t, repo.UpdateSecret(ctx, "app-1", "h2"))
	app, err := repo.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "h2", app.SecretHash)

	assert.ErrorIs(t, repo.UpdateSecret(ctx, "app-9", "h"), serrors.ErrNotFound)

	deleted, err := repo.Delete(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err := repo.Exists(ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
