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

// MockOTPRepository is a testify mock of auth.OTPRepository.
type MockOTPRepository struct {
	mock.Mock
}

// NewMockOTPRepository returns a mock whose expectations are asserted on test cleanup.
func NewMockOTPRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOTPRepository {
	m := &MockOTPRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.OTPRepository = (*MockOTPRepository)(nil)

func (m *MockOTPRepository) Create(ctx context.Context, challenge *auth.OTPChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *MockOTPRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.OTPChallenge, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*auth.OTPChallenge)
	return v, args.Error(1)
}

func (m *MockOTPRepository) Latest(ctx context.Context, destination string, purpose auth.OTPPurpose) (*auth.OTPChallenge, error) {
	args := m.Called(ctx, destination, purpose)
	v, _ := args.Get(0).(*auth.OTPChallenge)
	return v, args.Error(1)
}

func (m *MockOTPRepository) InvalidateOpen(ctx context.Context, destination string, purpose auth.OTPPurpose, at time.Time) (int64, error) {
	args := m.Called(ctx, destination, purpose, at)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}

func (m *MockOTPRepository) IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockOTPRepository) Delete(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOTPRepository) ConsumeIfOpen(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockOTPRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	v, _ := args.Get(0).(int64)
	return v, args.Error(1)
}
