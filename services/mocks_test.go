package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"go.pilab.hu/vident/domain"
)

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Insert(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) HashTaken(ctx context.Context, accessHash, refreshHash string) (bool, error) {
	args := m.Called(ctx, accessHash, refreshHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenRepository) FindByAccessHash(ctx context.Context, accessHash string) (*domain.Token, error) {
	args := m.Called(ctx, accessHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenRepository) FindByRefreshHash(ctx context.Context, refreshHash string) (*domain.Token, error) {
	args := m.Called(ctx, refreshHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenRepository) DeleteByAccessHash(ctx context.Context, accessHash string) (int64, error) {
	args := m.Called(ctx, accessHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenRepository) DeleteByRefreshHash(ctx context.Context, refreshHash string) (int64, error) {
	args := m.Called(ctx, refreshHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenRepository) DeleteByVirtualIDs(ctx context.Context, virtualIDs []string) (int64, error) {
	args := m.Called(ctx, virtualIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenRepository) DeleteRefreshExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockVirtualIDRepository struct {
	mock.Mock
}

func (m *MockVirtualIDRepository) FindByPair(ctx context.Context, appID, systemID string) (*domain.VirtualIdentity, error) {
	args := m.Called(ctx, appID, systemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VirtualIdentity), args.Error(1)
}

func (m *MockVirtualIDRepository) Get(ctx context.Context, virtualID string) (*domain.VirtualIdentity, error) {
	args := m.Called(ctx, virtualID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VirtualIdentity), args.Error(1)
}

func (m *MockVirtualIDRepository) Exists(ctx context.Context, virtualID string) (bool, error) {
	args := m.Called(ctx, virtualID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVirtualIDRepository) Insert(ctx context.Context, vid *domain.VirtualIdentity) error {
	args := m.Called(ctx, vid)
	return args.Error(0)
}

func (m *MockVirtualIDRepository) ListBySystemID(ctx context.Context, systemID string) ([]string, error) {
	args := m.Called(ctx, systemID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockVirtualIDRepository) ListByAppID(ctx context.Context, appID string) ([]string, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockVirtualIDRepository) CountBySystemID(ctx context.Context, systemID string) (int64, error) {
	args := m.Called(ctx, systemID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVirtualIDRepository) CountByAppID(ctx context.Context, appID string) (int64, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVirtualIDRepository) DeleteBySystemID(ctx context.Context, systemID string) (int64, error) {
	args := m.Called(ctx, systemID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVirtualIDRepository) DeleteByAppID(ctx context.Context, appID string) (int64, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).(int64), args.Error(1)
}
