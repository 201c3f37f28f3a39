// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
)

// PasswordResetRepository implements auth.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	pool poolIface
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool poolIface) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)

// Create stores a new password reset request.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		reset.ID.String(),
		reset.UserID.String(),
		reset.TokenHash,
		reset.ExpiresAt,
		reset.CreatedAt,
	)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset request by its token hash.
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM password_resets
		WHERE token_hash = $1
	`, tokenHash)
	return scanReset(row, "get reset by token hash")
}

// Consume deletes the request in the same statement that reads it.
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, at time.Time) (*auth.PasswordReset, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM password_resets
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, created_at
	`, tokenHash, at)
	return scanReset(row, "consume reset")
}

func scanReset(row pgx.Row, op string) (*auth.PasswordReset, error) {
	var (
		reset        auth.PasswordReset
		idStr, owner string
	)
	err := row.Scan(&idStr, &owner, &reset.TokenHash, &reset.ExpiresAt, &reset.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_QUERY_FAILED").
			With("operation", op).
			Wrap(err)
	}
	if reset.ID, err = parseID(idStr, "id"); err != nil {
		return nil, err
	}
	if reset.UserID, err = parseID(owner, "user_id"); err != nil {
		return nil, err
	}
	return &reset, nil
}

// DeleteByUser removes all reset requests for a user.
func (r *PasswordResetRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete resets by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes requests that expired before cutoff.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
