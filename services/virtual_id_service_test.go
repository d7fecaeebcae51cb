package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/vident/domain"
	serrors "go.pilab.hu/vident/errors"
)

func TestVirtualIDService_GetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAccount(t, "dev")
	f.registerAccount(t, "user")
	appA := f.registerApp(t, "dev", true)
	appB := f.registerApp(t, "dev", false)

	first, err := f.vidService.GetOrCreate(ctx, appA, "user")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "vid-"))
	assert.Len(t, first, len("vid-")+32)

	again, err := f.vidService.GetOrCreate(ctx, appA, "user")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := f.vidService.GetOrCreate(ctx, appB, "user")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	ids, err := f.vidService.ListBySystemID(ctx, "user")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, other}, ids)

	ids, err = f.vidService.ListByAppID(ctx, appA)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, ids)
}

func TestVirtualIDService_GetOrCreateValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAccount(t, "dev")
	app := f.registerApp(t, "dev", true)

	_, err := f.vidService.GetOrCreate(ctx, "app-missing", "dev")
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	_, err = f.vidService.GetOrCreate(ctx, app, "missing")
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	ids, err := f.vidService.ListByAppID(ctx, app)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestVirtualIDService_ConcurrentGetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAccount(t, "dev")
	app := f.registerApp(t, "dev", true)

	const callers = 16
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vid, err := f.vidService.GetOrCreate(ctx, app, "dev")
			assert.NoError(t, err)
			results[i] = vid
		}()
	}
	wg.Wait()

	for _, vid := range results {
		assert.Equal(t, results[0], vid)
	}
	n, err := f.vids.CountBySystemID(ctx, "dev")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestVirtualIDService_ConflictConvergesOnWinner(t *testing.T) {
	f := newFixture(t)
	f.registerAccount(t, "dev")
	app := f.registerApp(t, "dev", true)

	repo := new(MockVirtualIDRepository)
	svc := NewVirtualIDService(repo, f.accounts, f.apps, f.cipher)
	winner := &domain.VirtualIdentity{VirtualID: "vid-winner", AppID: app, SystemID: "dev"}

	repo.On("FindByPair", mock.Anything, app, "dev").Return(nil, serrors.ErrNotFound).Once()
	repo.On("Exists", mock.Anything, mock.Anything).Return(false, nil)
	repo.On("Insert", mock.Anything, mock.Anything).Return(serrors.ErrConflict)
	repo.On("FindByPair", mock.Anything, app, "dev").Return(winner, nil)

	vid, err := svc.GetOrCreate(context.Background(), app, "dev")
	require.NoError(t, err)
	assert.Equal(t, "vid-winner", vid)
	repo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestVirtualIDService_BoundedRetry(t *testing.T) {
	calls := 0
	fixed := func() string {
		calls++
		return "vid-fixed"
	}

	f := newFixture(t, WithVirtualIDGenerator(fixed))
	ctx := context.Background()
	f.registerAccount(t, "dev")
	f.registerAccount(t, "user")
	app := f.registerApp(t, "dev", true)

	_, err := f.vidService.GetOrCreate(ctx, app, "dev")
	require.NoError(t, err)

	calls = 0
	_, err = f.vidService.GetOrCreate(ctx, app, "user")
	assert.ErrorIs(t, err, serrors.ErrRetriesExhausted)
	assert.Equal(t, MaxIDAttempts, calls)
}

func TestVirtualIDService_Resolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAccount(t, "dev")
	f.registerAccount(t, "user")
	app := f.registerApp(t, "dev", true)
	vid := f.pseudonym(t, app, "user")

	info, err := f.vidService.Resolve(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, &domain.LinkedInformation{
		AppID:       app,
		SystemID:    "user",
		UserID:      "user_user",
		Name:        "Account user",
		Email:       "user@example.com",
		AccountType: 4,
	}, info)

	_, err = f.vidService.Resolve(ctx, "vid-unknown")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestVirtualIDService_DeleteCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAccount(t, "dev")
	f.registerAccount(t, "user")
	app := f.registerApp(t, "dev", true)
	f.pseudonym(t, app, "user")
	f.pseudonym(t, app, "dev")

	ok, err := f.vidService.DeleteByAccount(ctx, "user")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.vidService.DeleteByApp(ctx, app)
	require.NoError(t, err)
	assert.True(t, ok)

	// nothing left: zero counted, zero removed
	ok, err = f.vidService.DeleteByApp(ctx, app)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVirtualIDService_DeleteRaceReportsFalse(t *testing.T) {
	f := newFixture(t)
	repo := new(MockVirtualIDRepository)
	svc := NewVirtualIDService(repo, f.accounts, f.apps, f.cipher)

	repo.On("CountByAppID", mock.Anything, "app-1").Return(int64(2), nil)
	repo.On("DeleteByAppID", mock.Anything, "app-1").Return(int64(3), nil)

	ok, err := svc.DeleteByApp(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, ok)

	storeErr := errors.New("timeout")
	repo.On("CountBySystemID", mock.Anything, "acc-1").Return(int64(0), storeErr)

	_, err = svc.DeleteByAccount(context.Background(), "acc-1")
	assert.ErrorIs(t, err, storeErr)
	repo.AssertNotCalled(t, "DeleteBySystemID", mock.Anything, mock.Anything)
}
