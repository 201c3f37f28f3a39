// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/auth/mocks"
	"github.com/manas360/authcore/pkg/errutil"
)

var testPepper = []byte("otp-pepper-for-tests-only-000000")

type fakeRecorder struct {
	mu         sync.Mutex
	logins     map[string]int
	refreshes  map[string]int
	reuse      int
	lockouts   int
	deliveries map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		logins:     map[string]int{},
		refreshes:  map[string]int{},
		deliveries: map[string]int{},
	}
}

func (f *fakeRecorder) LoginAttempt(method, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins[method+"/"+outcome]++
}

func (f *fakeRecorder) TokenRefresh(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes[outcome]++
}

func (f *fakeRecorder) RefreshReuse() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reuse++
}

func (f *fakeRecorder) Lockout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockouts++
}

func (f *fakeRecorder) OTPDelivery(channel, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries[channel+"/"+outcome]++
}

type harness struct {
	users    *mocks.MockUserRepository
	refresh  *mocks.MockRefreshTokenRepository
	otps     *mocks.MockOTPRepository
	recovery *mocks.MockRecoveryCodeRepository
	hasher   *mocks.MockPasswordHasher
	sender   *mocks.MockSender
	metrics  *fakeRecorder
	tokens   *auth.TokenIssuer
	now      time.Time
	svc      *auth.Service
}

func newHarness(t *testing.T, tweak ...func(*auth.ServiceConfig)) *harness {
	t.Helper()
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:      []byte("0123456789abcdef0123456789abcdef"),
		Issuer:      "manas360-test",
		Audience:    "manas360-api",
		AccessTTL:   15 * time.Minute,
		MFATokenTTL: 5 * time.Minute,
		Leeway:      30 * time.Second,
	})
	require.NoError(t, err)

	h := &harness{
		users:    mocks.NewMockUserRepository(t),
		refresh:  mocks.NewMockRefreshTokenRepository(t),
		otps:     mocks.NewMockOTPRepository(t),
		recovery: mocks.NewMockRecoveryCodeRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		sender:   mocks.NewMockSender(t),
		metrics:  newFakeRecorder(),
		tokens:   tokens,
		now:      time.Now().Truncate(time.Second),
	}
	cfg := auth.ServiceConfig{
		OTP: auth.OTPPolicy{Pepper: testPepper, Cooldown: time.Minute, AutoRegister: true},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	h.svc, err = auth.NewService(auth.Deps{
		Users:         h.users,
		RefreshTokens: h.refresh,
		OTPs:          h.otps,
		RecoveryCodes: h.recovery,
		Hasher:        h.hasher,
		Tokens:        tokens,
		Sender:        h.sender,
		Metrics:       h.metrics,
		Now:           func() time.Time { return h.now },
	}, cfg)
	require.NoError(t, err)
	return h
}

// expectSession allows one refresh-token insert and captures it.
func (h *harness) expectSession() *auth.RefreshToken {
	captured := &auth.RefreshToken{}
	h.refresh.On("Create", mock.Anything, mock.AnythingOfType("*auth.RefreshToken")).
		Run(func(args mock.Arguments) {
			*captured = *args.Get(1).(*auth.RefreshToken)
		}).Return(nil).Once()
	return captured
}

// expectLoginSuccess allows the bookkeeping write after a completed login.
func (h *harness) expectLoginSuccess(user *auth.User) {
	h.users.On("RecordLoginSuccess", mock.Anything, user.ID, h.now).Return(nil).Once()
}

// expectFailure answers RecordFailure with what the database would store
// for user's current state.
func (h *harness) expectFailure(user *auth.User) {
	policy := auth.DefaultLockoutPolicy()
	h.users.On("RecordFailure", mock.Anything, user.ID, h.now, policy).
		Return(nextFailure(user, policy, h.now), nil).Once()
}

func nextFailure(u *auth.User, p auth.LockoutPolicy, now time.Time) auth.FailureState {
	if u.LockedUntil != nil && u.LockedUntil.After(now) {
		return auth.FailureState{FailedAttempts: u.FailedAttempts, LockedUntil: u.LockedUntil, LastFailedAt: u.LastFailedAt}
	}
	n := u.FailedAttempts + 1
	if u.LockedUntil != nil {
		n = 1
	}
	st := auth.FailureState{FailedAttempts: n, LastFailedAt: &now}
	if until := p.LockoutUntil(n, now); until != nil {
		st.LockedUntil = until
		st.Locked = true
	}
	return st
}

func newPatient(t *testing.T, hash string) *auth.User {
	t.Helper()
	u, err := auth.NewUser("priya@example.com", "9876543210", "Priya", auth.RolePatient, hash)
	require.NoError(t, err)
	return u
}

func newAdmin(t *testing.T, hash string) *auth.User {
	t.Helper()
	u, err := auth.NewUser("admin@manas360.com", "", "Ops", auth.RoleAdmin, hash)
	require.NoError(t, err)
	return u
}

func TestNewService_RequiresDependencies(t *testing.T) {
	full := func() auth.Deps {
		tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
			Secret:      []byte("0123456789abcdef0123456789abcdef"),
			AccessTTL:   time.Minute,
			MFATokenTTL: time.Minute,
		})
		require.NoError(t, err)
		return auth.Deps{
			Users:         mocks.NewMockUserRepository(t),
			RefreshTokens: mocks.NewMockRefreshTokenRepository(t),
			OTPs:          mocks.NewMockOTPRepository(t),
			RecoveryCodes: mocks.NewMockRecoveryCodeRepository(t),
			Hasher:        mocks.NewMockPasswordHasher(t),
			Tokens:        tokens,
			Sender:        mocks.NewMockSender(t),
		}
	}

	tests := []struct {
		name  string
		strip func(*auth.Deps)
	}{
		{"nil users", func(d *auth.Deps) { d.Users = nil }},
		{"nil refresh tokens", func(d *auth.Deps) { d.RefreshTokens = nil }},
		{"nil otps", func(d *auth.Deps) { d.OTPs = nil }},
		{"nil recovery codes", func(d *auth.Deps) { d.RecoveryCodes = nil }},
		{"nil hasher", func(d *auth.Deps) { d.Hasher = nil }},
		{"nil tokens", func(d *auth.Deps) { d.Tokens = nil }},
		{"nil sender", func(d *auth.Deps) { d.Sender = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.strip(&deps)
			svc, err := auth.NewService(deps, auth.ServiceConfig{OTP: auth.OTPPolicy{Pepper: testPepper}})
			assert.Nil(t, svc)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_CONFIG")
		})
	}

	t.Run("empty pepper", func(t *testing.T) {
		svc, err := auth.NewService(full(), auth.ServiceConfig{})
		assert.Nil(t, svc)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CONFIG")
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates patient and logs in", func(t *testing.T) {
		h := newHarness(t)
		h.hasher.On("Hash", "Sunrise2026").Return("argon-hash", nil)
		h.users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(nil)
		h.users.On("RecordLoginSuccess", ctx, mock.AnythingOfType("ulid.ULID"), h.now).Return(nil)
		row := h.expectSession()

		tokens, err := h.svc.Register(ctx, auth.RegisterInput{
			Email:    "New.Patient@Example.com",
			Name:     "New Patient",
			Password: "Sunrise2026",
		}, auth.ClientMeta{UserAgent: "test", IPAddress: "10.0.0.1"})
		require.NoError(t, err)

		require.NotNil(t, tokens.User)
		assert.Equal(t, auth.RolePatient, tokens.User.Role)
		assert.Equal(t, "new.patient@example.com", *tokens.User.Email)
		assert.Equal(t, "argon-hash", tokens.User.PasswordHash)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.Len(t, tokens.RefreshToken, 64)
		assert.Equal(t, row.FamilyID, tokens.SessionID)
		assert.Equal(t, auth.HashToken(tokens.RefreshToken), row.TokenHash)
		assert.Equal(t, auth.HashCSRFToken(tokens.CSRFToken), row.CSRFHash)
		assert.Equal(t, "10.0.0.1", row.IPAddress)
	})

	t.Run("admins cannot self register", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Register(ctx, auth.RegisterInput{
			Email: "x@example.com", Name: "X", Password: "Sunrise2026", Role: auth.RoleAdmin,
		}, auth.ClientMeta{})
		errutil.AssertErrorCode(t, err, "AUTH_ROLE_NOT_ALLOWED")
	})

	t.Run("weak password", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Register(ctx, auth.RegisterInput{
			Email: "x@example.com", Name: "X", Password: "short",
		}, auth.ClientMeta{})
		errutil.AssertErrorCode(t, err, "AUTH_WEAK_PASSWORD")
	})

	t.Run("duplicate identity keeps repository code", func(t *testing.T) {
		h := newHarness(t)
		h.hasher.On("Hash", "Sunrise2026").Return("argon-hash", nil)
		h.users.On("Create", ctx, mock.Anything).
			Return(oops.Code("AUTH_IDENTITY_TAKEN").Errorf("email already registered"))

		_, err := h.svc.Register(ctx, auth.RegisterInput{
			Email: "dup@example.com", Name: "Dup", Password: "Sunrise2026", Role: auth.RoleTherapist,
		}, auth.ClientMeta{})
		errutil.AssertErrorCode(t, err, "AUTH_IDENTITY_TAKEN")
	})
}

func TestService_CreateAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.hasher.On("Hash", "Sunrise2026").Return("argon-hash", nil)
	h.users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(nil)

	user, enrollment, err := h.svc.CreateAdmin(ctx, "root@manas360.com", "", "Root", "Sunrise2026", auth.MFATOTP)
	require.NoError(t, err)

	assert.Equal(t, auth.RoleAdmin, user.Role)
	assert.True(t, user.MFA.Pending())
	assert.Equal(t, enrollment.Secret, user.MFA.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")
	assert.True(t, user.EmailVerified)
}

func TestService_PasswordLogin(t *testing.T) {
	ctx := context.Background()
	meta := auth.ClientMeta{UserAgent: "ua", IPAddress: "127.0.0.1"}

	t.Run("success issues tokens and resets failures", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		user.FailedAttempts = 3
		last := h.now.Add(-time.Minute)
		user.LastFailedAt = &last
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "stored-hash").Return(false)
		h.expectLoginSuccess(user)
		h.expectSession()

		res, err := h.svc.PasswordLogin(ctx, "Priya@Example.com", "Sunrise2026", meta)
		require.NoError(t, err)
		require.NotNil(t, res.Tokens)
		assert.Nil(t, res.MFA)
		assert.Zero(t, user.FailedAttempts)
		assert.NotNil(t, user.LastLoginAt)
		assert.Equal(t, 1, h.metrics.logins["password/success"])
	})

	t.Run("phone identifier", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		h.users.On("GetByPhone", ctx, "+919876543210").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "stored-hash").Return(false)
		h.expectLoginSuccess(user)
		h.expectSession()

		res, err := h.svc.PasswordLogin(ctx, "98765 43210", "Sunrise2026", meta)
		require.NoError(t, err)
		assert.NotNil(t, res.Tokens)
	})

	t.Run("unknown user still verifies against dummy hash", func(t *testing.T) {
		h := newHarness(t)
		h.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)
		h.hasher.On("Verify", "Sunrise2026", mock.MatchedBy(func(hash string) bool {
			return hash != "" && hash[0] == '$'
		})).Return(false, nil)

		_, err := h.svc.PasswordLogin(ctx, "ghost@example.com", "Sunrise2026", meta)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, 1, h.metrics.logins["password/invalid"])
	})

	t.Run("wrong password counts a failure", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "wrong-pass1", "stored-hash").Return(false, nil)
		h.expectFailure(user)

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "wrong-pass1", meta)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, 1, user.FailedAttempts)
		assert.Nil(t, user.LockedUntil)
		require.NotNil(t, user.LastFailedAt)
		assert.Equal(t, h.now, *user.LastFailedAt)
	})

	t.Run("attempt inside the progressive delay is rejected uncounted", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		user.FailedAttempts = 3
		last := h.now.Add(-time.Second)
		user.LastFailedAt = &last
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", meta)
		errutil.AssertErrorCode(t, err, "AUTH_TOO_MANY_ATTEMPTS")
		errutil.AssertErrorContext(t, err, "retry_after", 3*time.Second)
		assert.Equal(t, 3, user.FailedAttempts)
		h.users.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("attempt after the progressive delay is evaluated", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		user.FailedAttempts = 3
		last := h.now.Add(-4 * time.Second)
		user.LastFailedAt = &last
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "wrong-pass1", "stored-hash").Return(false, nil)
		h.expectFailure(user)

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "wrong-pass1", meta)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, 4, user.FailedAttempts)
	})

	t.Run("progressive delay is capped", func(t *testing.T) {
		h := newHarness(t, func(c *auth.ServiceConfig) {
			c.Lockout = auth.LockoutPolicy{Threshold: 10, Duration: time.Hour}
		})
		user := newPatient(t, "stored-hash")
		user.FailedAttempts = 8
		user.LastFailedAt = &h.now
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", meta)
		errutil.AssertErrorCode(t, err, "AUTH_TOO_MANY_ATTEMPTS")
		errutil.AssertErrorContext(t, err, "retry_after", auth.MaxProgressiveDelay)
	})

	t.Run("failure bookkeeping error fails closed", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "wrong-pass1", "stored-hash").Return(false, nil)
		h.users.On("RecordFailure", ctx, user.ID, h.now, auth.DefaultLockoutPolicy()).
			Return(auth.FailureState{}, errors.New("connection reset"))

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "wrong-pass1", meta)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("fifth failure locks the account", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		user.FailedAttempts = auth.LockoutThreshold - 1
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "wrong-pass1", "stored-hash").Return(false, nil)
		h.expectFailure(user)

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "wrong-pass1", meta)
		errutil.AssertErrorCode(t, err, "AUTH_ACCOUNT_LOCKED")
		require.NotNil(t, user.LockedUntil)
		assert.Equal(t, h.now.Add(auth.LockoutDuration), *user.LockedUntil)
		assert.Equal(t, 1, h.metrics.lockouts)
	})

	t.Run("locked account rejects correct password", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "stored-hash")
		until := h.now.Add(10 * time.Minute)
		user.FailedAttempts = auth.LockoutThreshold
		user.LockedUntil = &until
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", meta)
		errutil.AssertErrorCode(t, err, "AUTH_ACCOUNT_LOCKED")
		errutil.AssertErrorContext(t, err, "retry_after", 10*time.Minute)
		assert.Equal(t, 1, h.metrics.logins["password/locked"])
	})

	t.Run("legacy hash is upgraded", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "$2b$10$legacy")
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "$2b$10$legacy").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "$2b$10$legacy").Return(true)
		h.hasher.On("Hash", "Sunrise2026").Return("$argon2id$new", nil)
		h.users.On("UpgradePasswordHash", ctx, user.ID, "$2b$10$legacy", "$argon2id$new").Return(true, nil)
		h.expectLoginSuccess(user)
		h.expectSession()

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", meta)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$new", user.PasswordHash)
	})

	t.Run("hash upgrade loses to a concurrent password change", func(t *testing.T) {
		h := newHarness(t)
		user := newPatient(t, "$2b$10$legacy")
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "$2b$10$legacy").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "$2b$10$legacy").Return(true)
		h.hasher.On("Hash", "Sunrise2026").Return("$argon2id$new", nil)
		h.users.On("UpgradePasswordHash", ctx, user.ID, "$2b$10$legacy", "$argon2id$new").Return(false, nil)
		h.expectLoginSuccess(user)
		h.expectSession()

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", meta)
		require.NoError(t, err)
		assert.Equal(t, "$2b$10$legacy", user.PasswordHash)
		h.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("admin gets mfa challenge", func(t *testing.T) {
		h := newHarness(t)
		admin := newAdmin(t, "stored-hash")
		admin.MFA = auth.MFAState{Method: auth.MFATOTP, Secret: "JBSWY3DPEHPK3PXP", Enabled: true}
		h.users.On("GetByEmail", ctx, "admin@manas360.com").Return(admin, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "stored-hash").Return(false)

		res, err := h.svc.PasswordLogin(ctx, "admin@manas360.com", "Sunrise2026", meta)
		require.NoError(t, err)
		assert.Nil(t, res.Tokens)
		require.NotNil(t, res.MFA)
		assert.Equal(t, auth.MFATOTP, res.MFA.Method)
		assert.False(t, res.MFA.EnrollmentPending)

		claims, err := h.tokens.ParseMFAPending(res.MFA.Token)
		require.NoError(t, err)
		id, err := claims.UserID()
		require.NoError(t, err)
		assert.Equal(t, admin.ID, id)
		assert.Equal(t, 1, h.metrics.logins["password/mfa_required"])
	})

	t.Run("admin without secret must enroll", func(t *testing.T) {
		h := newHarness(t)
		admin := newAdmin(t, "stored-hash")
		h.users.On("GetByEmail", ctx, "admin@manas360.com").Return(admin, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "stored-hash").Return(false)

		_, err := h.svc.PasswordLogin(ctx, "admin@manas360.com", "Sunrise2026", meta)
		errutil.AssertErrorCode(t, err, "MFA_ENROLLMENT_REQUIRED")
	})

	t.Run("repository failure", func(t *testing.T) {
		h := newHarness(t)
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(nil, errors.New("connection reset"))

		_, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", meta)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
		assert.Equal(t, 1, h.metrics.logins["password/error"])
	})
}

func TestService_RememberMeExtendsFamily(t *testing.T) {
	ctx := context.Background()

	login := func(t *testing.T, h *harness, remember bool) *auth.RefreshToken {
		t.Helper()
		user := newPatient(t, "stored-hash")
		h.users.On("GetByEmail", ctx, "priya@example.com").Return(user, nil)
		h.hasher.On("Verify", "Sunrise2026", "stored-hash").Return(true, nil)
		h.hasher.On("NeedsUpgrade", "stored-hash").Return(false)
		h.expectLoginSuccess(user)
		row := h.expectSession()

		res, err := h.svc.PasswordLogin(ctx, "priya@example.com", "Sunrise2026", auth.ClientMeta{RememberMe: remember})
		require.NoError(t, err)
		assert.Equal(t, row.ExpiresAt, res.Tokens.RefreshExpiresAt)
		return row
	}

	t.Run("remembered session outlives the default ttl", func(t *testing.T) {
		h := newHarness(t)
		row := login(t, h, true)
		assert.Equal(t, h.now.Add(auth.RememberMeExpiry), row.FamilyExpiresAt)
		assert.Equal(t, h.now.Add(auth.RememberMeExpiry), row.ExpiresAt)
		assert.Equal(t, row.ID, row.FamilyID)
		assert.Nil(t, row.ParentID)
	})

	t.Run("default session", func(t *testing.T) {
		h := newHarness(t)
		row := login(t, h, false)
		assert.Equal(t, h.now.Add(auth.RefreshTokenExpiry), row.FamilyExpiresAt)
		assert.Equal(t, h.now.Add(auth.RefreshTokenExpiry), row.ExpiresAt)
	})
}

// issueFor mints an access token the way a completed login would.
func issueFor(t *testing.T, h *harness, user *auth.User) (string, ulid.ULID) {
	t.Helper()
	sid := ulid.Make()
	token, _, err := h.tokens.IssueAccess(user, sid)
	require.NoError(t, err)
	return token, sid
}
