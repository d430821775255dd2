package mocks

import (
	"context"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockTokenStore is a mock implementation of persistence.TokenStore interface.
type MockTokenStore struct {
	mock.Mock
}

var _ persistence.TokenStore = (*MockTokenStore)(nil)

func (m *MockTokenStore) Save(ctx context.Context, scope string, tokens models.RefreshAccessTokenResult) error {
	args := m.Called(ctx, scope, tokens)

	return args.Error(0)
}

func (m *MockTokenStore) Get(ctx context.Context, scope string) (*persistence.StoredTokens, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.StoredTokens), args.Error(1)
}

func (m *MockTokenStore) Delete(ctx context.Context, scope string) error {
	args := m.Called(ctx, scope)

	return args.Error(0)
}

func (m *MockTokenStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockTokenStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
