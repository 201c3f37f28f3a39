// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/manas360/authcore/internal/auth"
)

// MockRefreshTokenRepository is a testify mock of auth.RefreshTokenRepository.
type MockRefreshTokenRepository struct {
	mock.Mock
}

// NewMockRefreshTokenRepository returns a mock whose expectations are asserted on test cleanup.
func NewMockRefreshTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRefreshTokenRepository {
	m := &MockRefreshTokenRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.RefreshTokenRepository = (*MockRefreshTokenRepository)(nil)

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	v, _ := args.Get(0).(*auth.RefreshToken)
	return v, args.Error(1)
}

func (m *MockRefreshTokenRepository) MarkRotated(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefreshTokenRepository) RevokeFamily(ctx context.Context, familyID ulid.ULID, reason string, at time.Time) (int64, error) {
	args := m.Called(ctx, familyID, reason, at)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}

func (m *MockRefreshTokenRepository) RevokeFamilyForUser(ctx context.Context, userID, familyID ulid.ULID, reason string, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, familyID, reason, at)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}

func (m *MockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID, reason string, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, reason, at)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}

func (m *MockRefreshTokenRepository) ListActive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	args := m.Called(ctx, userID, now)
	v, _ := args.Get(0).([]*auth.RefreshToken)
	return v, args.Error(1)
}

func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}
