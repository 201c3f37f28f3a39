// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
)

const userColumns = `id, email, phone, name, role, password_hash, email_verified, phone_verified,
	failed_attempts, locked_until, last_failed_at, mfa_method, mfa_secret, mfa_counter, mfa_last_step, mfa_enabled,
	mfa_enrolled_at, token_version, last_login_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ auth.UserRepository = (*UserRepository)(nil)

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		user.ID.String(),
		user.Email,
		user.Phone,
		user.Name,
		string(user.Role),
		user.PasswordHash,
		user.EmailVerified,
		user.PhoneVerified,
		user.FailedAttempts,
		user.LockedUntil,
		user.LastFailedAt,
		string(mfaMethod(user.MFA.Method)),
		user.MFA.Secret,
		int64(user.MFA.Counter), //nolint:gosec // counters never approach 2^63
		user.MFA.LastStep,
		user.MFA.Enabled,
		user.MFA.EnrolledAt,
		user.TokenVersion,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return identityTaken(constraint, err)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

func identityTaken(constraint string, err error) error {
	field := "email"
	if strings.Contains(constraint, "phone") {
		field = "phone"
	}
	return oops.Code("AUTH_IDENTITY_TAKEN").
		With("field", field).
		Wrapf(err, "%s is already registered", field)
}

func mfaMethod(m auth.MFAMethod) auth.MFAMethod {
	if m == "" {
		return auth.MFANone
	}
	return m
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return r.get(row, "id")
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return r.get(row, "email")
}

// GetByPhone retrieves a user by E.164 phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return r.get(row, "phone")
}

func (r *UserRepository) get(row pgx.Row, key string) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("lookup", key).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by "+key).
			With("lookup", key).
			Wrap(err)
	}
	return user, nil
}

// Update writes profile and verification columns.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	user.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, phone = $3, name = $4, role = $5,
		    email_verified = $6, phone_verified = $7, updated_at = $8
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.Phone,
		user.Name,
		string(user.Role),
		user.EmailVerified,
		user.PhoneVerified,
		user.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return identityTaken(constraint, err)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordFailure counts a failure in a single statement so concurrent
// failures never lose an increment. SET expressions see the pre-update row.
func (r *UserRepository) RecordFailure(ctx context.Context, id ulid.ULID, at time.Time, policy auth.LockoutPolicy) (auth.FailureState, error) {
	var st auth.FailureState
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET failed_attempts = CASE
		        WHEN locked_until > $2 THEN failed_attempts
		        WHEN locked_until IS NOT NULL THEN 1
		        ELSE failed_attempts + 1
		    END,
		    locked_until = CASE
		        WHEN locked_until > $2 THEN locked_until
		        WHEN (CASE WHEN locked_until IS NOT NULL THEN 1 ELSE failed_attempts + 1 END) >= $3 THEN $4::timestamptz
		        ELSE NULL
		    END,
		    last_failed_at = CASE WHEN locked_until > $2 THEN last_failed_at ELSE $2 END,
		    updated_at = $2
		WHERE id = $1
		RETURNING failed_attempts, locked_until, last_failed_at, COALESCE(locked_until = $4::timestamptz, FALSE)
	`, id.String(), at, policy.Threshold, at.Add(policy.Duration)).
		Scan(&st.FailedAttempts, &st.LockedUntil, &st.LastFailedAt, &st.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return st, oops.Code("USER_RECORD_FAILURE_FAILED").
			With("operation", "record failure").
			With("user_id", id.String()).
			Wrap(err)
	}
	return st, nil
}

// RecordLoginSuccess clears lockout state and stamps last_login_at.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id ulid.ULID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL, last_failed_at = NULL,
		    last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login success").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword sets the hash, clears lockout and bumps token_version.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $2, token_version = token_version + 1,
		    failed_attempts = 0, locked_until = NULL, last_failed_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING token_version
	`, id.String(), passwordHash).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", id.String()).
			Wrap(err)
	}
	return version, nil
}

// UpgradePasswordHash swaps the hash only if it is still oldHash.
func (r *UserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $3, updated_at = NOW()
		WHERE id = $1 AND password_hash = $2
	`, id.String(), oldHash, newHash)
	if err != nil {
		return false, oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "upgrade password hash").
			With("user_id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateMFA writes the MFA columns.
func (r *UserRepository) UpdateMFA(ctx context.Context, id ulid.ULID, mfa auth.MFAState) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET mfa_method = $2, mfa_secret = $3, mfa_counter = $4, mfa_last_step = $5,
		    mfa_enabled = $6, mfa_enrolled_at = $7, updated_at = NOW()
		WHERE id = $1
	`,
		id.String(),
		string(mfaMethod(mfa.Method)),
		mfa.Secret,
		int64(mfa.Counter), //nolint:gosec // counters never approach 2^63
		mfa.LastStep,
		mfa.Enabled,
		mfa.EnrolledAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_MFA_FAILED").
			With("operation", "update mfa").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// AdvanceMFA is a compare-and-set on the HOTP counter and TOTP last step.
func (r *UserRepository) AdvanceMFA(ctx context.Context, id ulid.ULID, prev, next auth.MFAState) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET mfa_counter = $2, mfa_last_step = $3, updated_at = NOW()
		WHERE id = $1 AND mfa_counter = $4 AND mfa_last_step = $5 AND mfa_secret = $6
	`,
		id.String(),
		int64(next.Counter), //nolint:gosec // counters never approach 2^63
		next.LastStep,
		int64(prev.Counter), //nolint:gosec // counters never approach 2^63
		prev.LastStep,
		prev.Secret,
	)
	if err != nil {
		return false, oops.Code("USER_UPDATE_MFA_FAILED").
			With("operation", "advance mfa").
			With("user_id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// BumpTokenVersion increments token_version and returns the new value.
func (r *UserRepository) BumpTokenVersion(ctx context.Context, id ulid.ULID) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING token_version
	`, id.String()).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_BUMP_VERSION_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return version, nil
}

// Delete removes a user. Sessions, recovery codes and resets cascade.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").With("user_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u       auth.User
		idStr   string
		role    string
		method  string
		counter int64
	)
	err := row.Scan(
		&idStr,
		&u.Email,
		&u.Phone,
		&u.Name,
		&role,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.PhoneVerified,
		&u.FailedAttempts,
		&u.LockedUntil,
		&u.LastFailedAt,
		&method,
		&u.MFA.Secret,
		&counter,
		&u.MFA.LastStep,
		&u.MFA.Enabled,
		&u.MFA.EnrolledAt,
		&u.TokenVersion,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	id, err := parseID(idStr, "id")
	if err != nil {
		return nil, err
	}
	u.ID = id
	u.Role = auth.Role(role)
	u.MFA.Method = auth.MFAMethod(method)
	u.MFA.Counter = uint64(counter) //nolint:gosec // stored from a uint64
	return &u, nil
}
