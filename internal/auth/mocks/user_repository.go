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

// MockUserRepository is a testify mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository returns a mock whose expectations are asserted on test cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.UserRepository = (*MockUserRepository)(nil)

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*auth.User)
	return v, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	v, _ := args.Get(0).(*auth.User)
	return v, args.Error(1)
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phone string) (*auth.User, error) {
	args := m.Called(ctx, phone)
	v, _ := args.Get(0).(*auth.User)
	return v, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) RecordFailure(ctx context.Context, id ulid.ULID, at time.Time, policy auth.LockoutPolicy) (auth.FailureState, error) {
	args := m.Called(ctx, id, at, policy)
	v, _ := args.Get(0).(auth.FailureState)
	return v, args.Error(1)
}

func (m *MockUserRepository) RecordLoginSuccess(ctx context.Context, id ulid.ULID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	args := m.Called(ctx, id, oldHash, newHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) AdvanceMFA(ctx context.Context, id ulid.ULID, prev, next auth.MFAState) (bool, error) {
	args := m.Called(ctx, id, prev, next)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) (int, error) {
	args := m.Called(ctx, id, passwordHash)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) UpdateMFA(ctx context.Context, id ulid.ULID, mfa auth.MFAState) error {
	args := m.Called(ctx, id, mfa)
	return args.Error(0)
}

func (m *MockUserRepository) BumpTokenVersion(ctx context.Context, id ulid.ULID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
