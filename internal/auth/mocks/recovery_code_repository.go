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

// MockRecoveryCodeRepository is a testify mock of auth.RecoveryCodeRepository.
type MockRecoveryCodeRepository struct {
	mock.Mock
}

// NewMockRecoveryCodeRepository returns a mock whose expectations are asserted on test cleanup.
func NewMockRecoveryCodeRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRecoveryCodeRepository {
	m := &MockRecoveryCodeRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.RecoveryCodeRepository = (*MockRecoveryCodeRepository)(nil)

func (m *MockRecoveryCodeRepository) Replace(ctx context.Context, userID ulid.ULID, codes []*auth.RecoveryCode) error {
	args := m.Called(ctx, userID, codes)
	return args.Error(0)
}

func (m *MockRecoveryCodeRepository) ListUnused(ctx context.Context, userID ulid.ULID) ([]*auth.RecoveryCode, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).([]*auth.RecoveryCode)
	return v, args.Error(1)
}

func (m *MockRecoveryCodeRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}
