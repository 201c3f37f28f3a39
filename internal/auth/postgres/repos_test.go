// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/webhook"
	"github.com/manas360/authcore/pkg/errutil"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var userCols = []string{
	"id", "email", "phone", "name", "role", "password_hash", "email_verified", "phone_verified",
	"failed_attempts", "locked_until", "last_failed_at", "mfa_method", "mfa_secret", "mfa_counter", "mfa_last_step", "mfa_enabled",
	"mfa_enrolled_at", "token_version", "last_login_at", "created_at", "updated_at",
}

func userRow(id ulid.ULID, email string, now time.Time) []any {
	return []any{
		id.String(), &email, (*string)(nil), "Priya", "patient", "hash", true, false,
		2, (*time.Time)(nil), &now, "totp", "SECRET", int64(3), int64(55), true,
		&now, 4, (*time.Time)(nil), now, now,
	}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	user, err := auth.NewUser("priya@example.com", "9876543210", "Priya", auth.RolePatient, "hash")
	require.NoError(t, err)

	t.Run("inserts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(append([]any{user.ID.String(), user.Email, user.Phone, "Priya", "patient", "hash"}, anyArgs(15)...)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewUserRepository(mock).Create(ctx, user))
	})

	tests := []struct {
		name       string
		constraint string
		field      string
	}{
		{"duplicate email", "users_email_lower_idx", "email"},
		{"duplicate phone", "users_phone_idx", "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(`INSERT INTO users`).
				WithArgs(anyArgs(21)...).
				WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint})

			err := NewUserRepository(mock).Create(ctx, user)
			errutil.AssertErrorCode(t, err, "AUTH_IDENTITY_TAKEN")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestUserRepository_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := ulid.Make()

	t.Run("by email scans every column", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("priya@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(userRow(id, "priya@example.com", now)...))

		u, err := NewUserRepository(mock).GetByEmail(ctx, "priya@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, u.ID)
		assert.Equal(t, "priya@example.com", *u.Email)
		assert.Nil(t, u.Phone)
		assert.Equal(t, auth.RolePatient, u.Role)
		assert.Equal(t, 2, u.FailedAttempts)
		require.NotNil(t, u.LastFailedAt)
		assert.Equal(t, now, *u.LastFailedAt)
		assert.Equal(t, auth.MFATOTP, u.MFA.Method)
		assert.Equal(t, uint64(3), u.MFA.Counter)
		assert.Equal(t, int64(55), u.MFA.LastStep)
		assert.True(t, u.MFA.Enabled)
		assert.Equal(t, 4, u.TokenVersion)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		u, err := NewUserRepository(mock).GetByID(ctx, id)
		assert.Nil(t, u)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE phone = \$1`).
			WithArgs("+919876543210").
			WillReturnError(errors.New("connection refused"))

		_, err := NewUserRepository(mock).GetByPhone(ctx, "+919876543210")
		errutil.AssertErrorCode(t, err, "USER_QUERY_FAILED")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestUserRepository_Versioning(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("update password bumps version", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE users\s+SET password_hash = \$2, token_version = token_version \+ 1`).
			WithArgs(id.String(), "new-hash").
			WillReturnRows(pgxmock.NewRows([]string{"token_version"}).AddRow(5))

		v, err := NewUserRepository(mock).UpdatePassword(ctx, id, "new-hash")
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})

	t.Run("bump missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE users SET token_version = token_version \+ 1`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).BumpTokenVersion(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("update of missing row", func(t *testing.T) {
		mock := newMock(t)
		user := &auth.User{ID: id, Name: "X", Role: auth.RolePatient}
		mock.ExpectExec(`UPDATE users`).
			WithArgs(anyArgs(8)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).Update(ctx, user)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("update mfa", func(t *testing.T) {
		mock := newMock(t)
		state := auth.MFAState{Method: auth.MFAHOTP, Secret: "S", Counter: 9}
		mock.ExpectExec(`UPDATE users\s+SET mfa_method`).
			WithArgs(id.String(), "hotp", "S", int64(9), int64(0), false, state.EnrolledAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).UpdateMFA(ctx, id, state))
	})

	t.Run("profile update leaves lockout and password columns alone", func(t *testing.T) {
		mock := newMock(t)
		email := "priya@example.com"
		user := &auth.User{ID: id, Email: &email, Name: "Priya", Role: auth.RolePatient, EmailVerified: true}
		mock.ExpectExec(`SET email = \$2, phone = \$3, name = \$4, role = \$5,\s+email_verified = \$6, phone_verified = \$7, updated_at = \$8\s+WHERE id = \$1\s*$`).
			WithArgs(id.String(), &email, (*string)(nil), "Priya", "patient", true, false, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).Update(ctx, user))
	})

	t.Run("hash upgrade is compare and set", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`WHERE id = \$1 AND password_hash = \$2`).
			WithArgs(id.String(), "old", "new").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`WHERE id = \$1 AND password_hash = \$2`).
			WithArgs(id.String(), "old", "new").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewUserRepository(mock)
		ok, err := repo.UpgradePasswordHash(ctx, id, "old", "new")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.UpgradePasswordHash(ctx, id, "old", "new")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("advance mfa loses to a concurrent writer", func(t *testing.T) {
		mock := newMock(t)
		prev := auth.MFAState{Method: auth.MFATOTP, Secret: "S", LastStep: 10}
		next := prev
		next.LastStep = 11
		mock.ExpectExec(`WHERE id = \$1 AND mfa_counter = \$4 AND mfa_last_step = \$5 AND mfa_secret = \$6`).
			WithArgs(id.String(), int64(0), int64(11), int64(0), int64(10), "S").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := NewUserRepository(mock).AdvanceMFA(ctx, id, prev, next)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("advance mfa error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`SET mfa_counter = \$2, mfa_last_step = \$3`).
			WithArgs(anyArgs(6)...).
			WillReturnError(errors.New("deadlock"))

		_, err := NewUserRepository(mock).AdvanceMFA(ctx, id, auth.MFAState{}, auth.MFAState{})
		errutil.AssertErrorCode(t, err, "USER_UPDATE_MFA_FAILED")
	})
}

func TestUserRepository_Lockout(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	at := time.Now().UTC().Truncate(time.Microsecond)
	policy := auth.LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}
	cols := []string{"failed_attempts", "locked_until", "last_failed_at", "locked"}

	t.Run("failure is counted in one statement", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE users\s+SET failed_attempts = CASE`).
			WithArgs(id.String(), at, 5, at.Add(15*time.Minute)).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(3, (*time.Time)(nil), &at, false))

		st, err := NewUserRepository(mock).RecordFailure(ctx, id, at, policy)
		require.NoError(t, err)
		assert.Equal(t, 3, st.FailedAttempts)
		assert.Nil(t, st.LockedUntil)
		require.NotNil(t, st.LastFailedAt)
		assert.Equal(t, at, *st.LastFailedAt)
		assert.False(t, st.Locked)
	})

	t.Run("threshold failure reports the new lock", func(t *testing.T) {
		mock := newMock(t)
		until := at.Add(15 * time.Minute)
		mock.ExpectQuery(`RETURNING failed_attempts, locked_until, last_failed_at`).
			WithArgs(id.String(), at, 5, until).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(5, &until, &at, true))

		st, err := NewUserRepository(mock).RecordFailure(ctx, id, at, policy)
		require.NoError(t, err)
		assert.True(t, st.Locked)
		require.NotNil(t, st.LockedUntil)
		assert.Equal(t, until, *st.LockedUntil)
	})

	t.Run("failure for missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE users`).
			WithArgs(anyArgs(4)...).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).RecordFailure(ctx, id, at, policy)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("failure query error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE users`).
			WithArgs(anyArgs(4)...).
			WillReturnError(errors.New("serialization failure"))

		_, err := NewUserRepository(mock).RecordFailure(ctx, id, at, policy)
		errutil.AssertErrorCode(t, err, "USER_RECORD_FAILURE_FAILED")
	})

	t.Run("login success clears lockout", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`SET failed_attempts = 0, locked_until = NULL, last_failed_at = NULL,\s+last_login_at = \$2`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).RecordLoginSuccess(ctx, id, at))
	})

	t.Run("login success for missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`SET failed_attempts = 0`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).RecordLoginSuccess(ctx, id, at)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("password change clears lockout", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`failed_attempts = 0, locked_until = NULL, last_failed_at = NULL`).
			WithArgs(id.String(), "h2").
			WillReturnRows(pgxmock.NewRows([]string{"token_version"}).AddRow(2))

		_, err := NewUserRepository(mock).UpdatePassword(ctx, id, "h2")
		require.NoError(t, err)
	})
}

var refreshCols = []string{
	"id", "family_id", "parent_id", "user_id", "token_hash", "csrf_hash", "user_agent", "ip_address",
	"expires_at", "family_expires_at", "created_at", "last_used_at", "rotated_at", "revoked_at", "revoke_reason",
}

func TestRefreshTokenRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id, family, parent, user := ulid.Make(), ulid.Make(), ulid.Make(), ulid.Make()

	t.Run("get by hash", func(t *testing.T) {
		mock := newMock(t)
		parentStr := parent.String()
		reason := "logout"
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs("h").
			WillReturnRows(pgxmock.NewRows(refreshCols).AddRow(
				id.String(), family.String(), &parentStr, user.String(), "h", "c", "ua", "1.1.1.1",
				now, now, now, (*time.Time)(nil), (*time.Time)(nil), &now, &reason))

		tok, err := NewRefreshTokenRepository(mock).GetByHash(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, id, tok.ID)
		assert.Equal(t, family, tok.FamilyID)
		require.NotNil(t, tok.ParentID)
		assert.Equal(t, parent, *tok.ParentID)
		assert.Equal(t, user, tok.UserID)
		assert.NotNil(t, tok.RevokedAt)
		assert.Equal(t, "logout", tok.RevokeReason)
	})

	t.Run("get by hash not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash`).WithArgs("h").WillReturnError(pgx.ErrNoRows)
		_, err := NewRefreshTokenRepository(mock).GetByHash(ctx, "h")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("create child touches parent", func(t *testing.T) {
		mock := newMock(t)
		tok := &auth.RefreshToken{
			ID: id, FamilyID: family, ParentID: &parent, UserID: user, TokenHash: "h", CSRFHash: "c",
			ExpiresAt: now, FamilyExpiresAt: now, CreatedAt: now,
		}
		parentStr := parent.String()
		mock.ExpectExec(`INSERT INTO refresh_tokens`).
			WithArgs(id.String(), family.String(), &parentStr, user.String(), "h", "c", "", "",
				now, now, now, tok.LastUsedAt, tok.RotatedAt, tok.RevokedAt, (*string)(nil)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE refresh_tokens SET last_used_at`).
			WithArgs(parent.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewRefreshTokenRepository(mock).Create(ctx, tok))
	})

	t.Run("mark rotated reports the winner", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`WHERE id = \$1 AND rotated_at IS NULL AND revoked_at IS NULL`).
			WithArgs(id.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`WHERE id = \$1 AND rotated_at IS NULL AND revoked_at IS NULL`).
			WithArgs(id.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewRefreshTokenRepository(mock)
		won, err := repo.MarkRotated(ctx, id, now)
		require.NoError(t, err)
		assert.True(t, won)
		won, err = repo.MarkRotated(ctx, id, now)
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("revoke family", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`WHERE family_id = \$1 AND revoked_at IS NULL`).
			WithArgs(family.String(), now, auth.RevokeReuseDetected).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		n, err := NewRefreshTokenRepository(mock).RevokeFamily(ctx, family, auth.RevokeReuseDetected, now)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("revoke family error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`WHERE family_id = \$1 AND user_id = \$2`).
			WithArgs(family.String(), user.String(), now, auth.RevokeSession).
			WillReturnError(errors.New("deadlock"))

		_, err := NewRefreshTokenRepository(mock).RevokeFamilyForUser(ctx, user, family, auth.RevokeSession, now)
		errutil.AssertErrorCode(t, err, "REFRESH_REVOKE_FAILED")
	})

	t.Run("list active", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM refresh_tokens\s+WHERE user_id = \$1`).
			WithArgs(user.String(), now).
			WillReturnRows(pgxmock.NewRows(refreshCols).
				AddRow(id.String(), family.String(), (*string)(nil), user.String(), "h", "c", "ua", "ip",
					now, now, now, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), (*string)(nil)))

		toks, err := NewRefreshTokenRepository(mock).ListActive(ctx, user, now)
		require.NoError(t, err)
		require.Len(t, toks, 1)
		assert.Nil(t, toks[0].ParentID)
		assert.Empty(t, toks[0].RevokeReason)
	})

	t.Run("delete expired", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE family_expires_at < \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 7))

		n, err := NewRefreshTokenRepository(mock).DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})
}

func TestOTPRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := ulid.Make()

	t.Run("latest", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT 1`).
			WithArgs("+919876543210", "login").
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "destination", "channel", "purpose", "code_hash", "attempts", "max_attempts",
				"expires_at", "consumed_at", "created_at",
			}).AddRow(id.String(), "+919876543210", "sms", "login", "ch", 1, 5, now, (*time.Time)(nil), now))

		c, err := NewOTPRepository(mock).Latest(ctx, "+919876543210", auth.OTPPurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID)
		assert.Equal(t, "sms", string(c.Channel))
		assert.Equal(t, auth.OTPPurposeLogin, c.Purpose)
		assert.Equal(t, 1, c.Attempts)
	})

	t.Run("latest none", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM otp_challenges`).
			WithArgs("a@b.co", "verify").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewOTPRepository(mock).Latest(ctx, "a@b.co", auth.OTPPurposeVerify)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("increment attempts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE otp_challenges SET attempts = attempts \+ 1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"attempts"}).AddRow(3))

		n, err := NewOTPRepository(mock).IncrementAttempts(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("consume is compare and set", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`consumed_at IS NULL AND expires_at > \$2 AND attempts < max_attempts`).
			WithArgs(id.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := NewOTPRepository(mock).ConsumeIfOpen(ctx, id, now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM otp_challenges WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, NewOTPRepository(mock).Delete(ctx, id))
	})

	t.Run("delete error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM otp_challenges WHERE id`).
			WithArgs(id.String()).
			WillReturnError(errors.New("db down"))

		err := NewOTPRepository(mock).Delete(ctx, id)
		errutil.AssertErrorCode(t, err, "OTP_DELETE_FAILED")
	})
}

func TestRecoveryCodeRepository_Replace(t *testing.T) {
	ctx := context.Background()
	user := ulid.Make()
	now := time.Now().UTC()
	codes := []*auth.RecoveryCode{
		{ID: ulid.Make(), CodeHash: "a", CreatedAt: now},
		{ID: ulid.Make(), CodeHash: "b", CreatedAt: now},
	}

	t.Run("commits", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM recovery_codes WHERE user_id = \$1`).
			WithArgs(user.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 10))
		for _, c := range codes {
			mock.ExpectExec(`INSERT INTO recovery_codes`).
				WithArgs(c.ID.String(), user.String(), c.CodeHash, c.UsedAt, c.CreatedAt).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		require.NoError(t, NewRecoveryCodeRepository(mock).Replace(ctx, user, codes))
	})

	t.Run("rolls back on insert failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM recovery_codes`).
			WithArgs(user.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec(`INSERT INTO recovery_codes`).
			WithArgs(anyArgs(5)...).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := NewRecoveryCodeRepository(mock).Replace(ctx, user, codes)
		errutil.AssertErrorCode(t, err, "RECOVERY_REPLACE_FAILED")
	})

	t.Run("mark used once", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE recovery_codes SET used_at = \$2 WHERE id = \$1 AND used_at IS NULL`).
			WithArgs(codes[0].ID.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := NewRecoveryCodeRepository(mock).MarkUsed(ctx, codes[0].ID, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPasswordResetRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM password_resets\s+WHERE token_hash = \$1`).
			WithArgs("h").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewPasswordResetRepository(mock).GetByTokenHash(ctx, "h")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		id, user := ulid.Make(), ulid.Make()
		now := time.Now().UTC()
		mock.ExpectQuery(`FROM password_resets`).
			WithArgs("h").
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}).
				AddRow(id.String(), user.String(), "h", now, now))

		r, err := NewPasswordResetRepository(mock).GetByTokenHash(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, id, r.ID)
		assert.Equal(t, user, r.UserID)
	})
}

func TestPasswordResetRepository_Consume(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("deletes and returns the live request", func(t *testing.T) {
		mock := newMock(t)
		id, user := ulid.Make(), ulid.Make()
		mock.ExpectQuery(`DELETE FROM password_resets\s+WHERE token_hash = \$1 AND expires_at > \$2\s+RETURNING`).
			WithArgs("h", now).
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}).
				AddRow(id.String(), user.String(), "h", now.Add(time.Hour), now))

		r, err := NewPasswordResetRepository(mock).Consume(ctx, "h", now)
		require.NoError(t, err)
		assert.Equal(t, id, r.ID)
		assert.Equal(t, user, r.UserID)
	})

	t.Run("already consumed", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`DELETE FROM password_resets`).
			WithArgs("h", now).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewPasswordResetRepository(mock).Consume(ctx, "h", now)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestWebhookEventRepository_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("first delivery", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO webhook_events`).
			WithArgs("razorpay", "evt_1", "ph").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, NewWebhookEventRepository(mock).Record(ctx, "razorpay", "evt_1", "ph"))
	})

	t.Run("duplicate delivery", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`ON CONFLICT \(provider, event_id\) DO NOTHING`).
			WithArgs("razorpay", "evt_1", "ph").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := NewWebhookEventRepository(mock).Record(ctx, "razorpay", "evt_1", "ph")
		assert.ErrorIs(t, err, webhook.ErrDuplicate)
		errutil.AssertErrorCode(t, err, "WEBHOOK_DUPLICATE")
	})

	t.Run("forget", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM webhook_events WHERE provider = \$1 AND event_id = \$2`).
			WithArgs("razorpay", "evt_1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, NewWebhookEventRepository(mock).Forget(ctx, "razorpay", "evt_1"))
	})

	t.Run("forget error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM webhook_events`).
			WithArgs("razorpay", "evt_1").
			WillReturnError(errors.New("db down"))

		err := NewWebhookEventRepository(mock).Forget(ctx, "razorpay", "evt_1")
		errutil.AssertErrorCode(t, err, "WEBHOOK_FORGET_FAILED")
	})
}
