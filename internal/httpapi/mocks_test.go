// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/webhook"
)

type mockAuth struct{ mock.Mock }

var _ AuthService = (*mockAuth)(nil)

func (m *mockAuth) Register(ctx context.Context, in auth.RegisterInput, meta auth.ClientMeta) (*auth.Tokens, error) {
	args := m.Called(ctx, in, meta)
	t, _ := args.Get(0).(*auth.Tokens)
	return t, args.Error(1)
}

func (m *mockAuth) PasswordLogin(ctx context.Context, identifier, password string, meta auth.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, identifier, password, meta)
	r, _ := args.Get(0).(*auth.LoginResult)
	return r, args.Error(1)
}

func (m *mockAuth) RequestOTP(ctx context.Context, destination string, purpose auth.OTPPurpose) (*auth.OTPRequest, error) {
	args := m.Called(ctx, destination, purpose)
	r, _ := args.Get(0).(*auth.OTPRequest)
	return r, args.Error(1)
}

func (m *mockAuth) OTPLogin(ctx context.Context, challengeID ulid.ULID, code string, meta auth.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, challengeID, code, meta)
	r, _ := args.Get(0).(*auth.LoginResult)
	return r, args.Error(1)
}

func (m *mockAuth) VerifyMFA(ctx context.Context, mfaToken, code string, meta auth.ClientMeta) (*auth.Tokens, error) {
	args := m.Called(ctx, mfaToken, code, meta)
	t, _ := args.Get(0).(*auth.Tokens)
	return t, args.Error(1)
}

func (m *mockAuth) Refresh(ctx context.Context, refreshToken, csrfToken string, meta auth.ClientMeta) (*auth.Tokens, error) {
	args := m.Called(ctx, refreshToken, csrfToken, meta)
	t, _ := args.Get(0).(*auth.Tokens)
	return t, args.Error(1)
}

func (m *mockAuth) Logout(ctx context.Context, refreshToken, csrfToken string) error {
	return m.Called(ctx, refreshToken, csrfToken).Error(0)
}

func (m *mockAuth) LogoutAll(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockAuth) Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error) {
	args := m.Called(ctx, accessToken)
	p, _ := args.Get(0).(*auth.Principal)
	return p, args.Error(1)
}

func (m *mockAuth) Profile(ctx context.Context, userID ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *mockAuth) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error {
	return m.Called(ctx, userID, current, next).Error(0)
}

func (m *mockAuth) Sessions(ctx context.Context, userID ulid.ULID) ([]auth.SessionInfo, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).([]auth.SessionInfo)
	return s, args.Error(1)
}

func (m *mockAuth) RevokeSession(ctx context.Context, userID, familyID ulid.ULID) error {
	return m.Called(ctx, userID, familyID).Error(0)
}

func (m *mockAuth) BeginEnrollment(ctx context.Context, userID ulid.ULID, method auth.MFAMethod) (*auth.Enrollment, error) {
	args := m.Called(ctx, userID, method)
	e, _ := args.Get(0).(*auth.Enrollment)
	return e, args.Error(1)
}

func (m *mockAuth) ConfirmEnrollment(ctx context.Context, userID ulid.ULID, code string) ([]string, error) {
	args := m.Called(ctx, userID, code)
	c, _ := args.Get(0).([]string)
	return c, args.Error(1)
}

func (m *mockAuth) DisableMFA(ctx context.Context, userID ulid.ULID, code string) error {
	return m.Called(ctx, userID, code).Error(0)
}

func (m *mockAuth) VerifyDestination(ctx context.Context, userID, challengeID ulid.ULID, code string) (*auth.User, error) {
	args := m.Called(ctx, userID, challengeID, code)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

type mockReset struct{ mock.Mock }

func (m *mockReset) RequestReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockReset) ValidateToken(ctx context.Context, token string) (ulid.ULID, error) {
	args := m.Called(ctx, token)
	id, _ := args.Get(0).(ulid.ULID)
	return id, args.Error(1)
}

func (m *mockReset) ResetPassword(ctx context.Context, token, newPassword string) error {
	return m.Called(ctx, token, newPassword).Error(0)
}

type mockWebhooks struct{ mock.Mock }

func (m *mockWebhooks) Handle(ctx context.Context, provider, signature string, body []byte) (*webhook.Event, error) {
	args := m.Called(ctx, provider, signature, body)
	e, _ := args.Get(0).(*webhook.Event)
	return e, args.Error(1)
}
