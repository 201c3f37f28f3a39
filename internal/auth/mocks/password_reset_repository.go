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

// MockPasswordResetRepository is a testify mock of auth.PasswordResetRepository.
type MockPasswordResetRepository struct {
	mock.Mock
}

// NewMockPasswordResetRepository returns a mock whose expectations are asserted on test cleanup.
func NewMockPasswordResetRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.PasswordResetRepository = (*MockPasswordResetRepository)(nil)

func (m *MockPasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	args := m.Called(ctx, reset)
	return args.Error(0)
}

func (m *MockPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	args := m.Called(ctx, tokenHash)
	v, _ := args.Get(0).(*auth.PasswordReset)
	return v, args.Error(1)
}

func (m *MockPasswordResetRepository) Consume(ctx context.Context, tokenHash string, at time.Time) (*auth.PasswordReset, error) {
	args := m.Called(ctx, tokenHash, at)
	v, _ := args.Get(0).(*auth.PasswordReset)
	return v, args.Error(1)
}

func (m *MockPasswordResetRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}
