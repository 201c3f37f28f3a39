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
	"github.com/manas360/authcore/internal/notify"
)

const otpColumns = `id, destination, channel, purpose, code_hash, attempts, max_attempts, expires_at, consumed_at, created_at`

// OTPRepository implements auth.OTPRepository using PostgreSQL.
type OTPRepository struct {
	pool poolIface
}

// NewOTPRepository creates a new OTPRepository.
func NewOTPRepository(pool poolIface) *OTPRepository {
	return &OTPRepository{pool: pool}
}

var _ auth.OTPRepository = (*OTPRepository)(nil)

func (r *OTPRepository) Create(ctx context.Context, c *auth.OTPChallenge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO otp_challenges (`+otpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		c.ID.String(),
		c.Destination,
		string(c.Channel),
		string(c.Purpose),
		c.CodeHash,
		c.Attempts,
		c.MaxAttempts,
		c.ExpiresAt,
		c.ConsumedAt,
		c.CreatedAt,
	)
	if err != nil {
		return oops.Code("OTP_CREATE_FAILED").With("operation", "insert otp challenge").Wrap(err)
	}
	return nil
}

func (r *OTPRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.OTPChallenge, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+otpColumns+` FROM otp_challenges WHERE id = $1`, id.String())
	c, err := scanOTPChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_NOT_FOUND").With("challenge_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_QUERY_FAILED").With("challenge_id", id.String()).Wrap(err)
	}
	return c, nil
}

// Latest returns the most recent challenge for a destination and purpose,
// consumed or not. It backs the resend cooldown.
func (r *OTPRepository) Latest(ctx context.Context, destination string, purpose auth.OTPPurpose) (*auth.OTPChallenge, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+otpColumns+`
		FROM otp_challenges
		WHERE destination = $1 AND purpose = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, destination, string(purpose))
	c, err := scanOTPChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_QUERY_FAILED").With("operation", "latest challenge").Wrap(err)
	}
	return c, nil
}

// InvalidateOpen consumes every open challenge so only the newest code works.
func (r *OTPRepository) InvalidateOpen(ctx context.Context, destination string, purpose auth.OTPPurpose, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE otp_challenges
		SET consumed_at = $3
		WHERE destination = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > $3
	`, destination, string(purpose), at)
	if err != nil {
		return 0, oops.Code("OTP_INVALIDATE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func (r *OTPRepository) IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE otp_challenges SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`, id.String()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("OTP_NOT_FOUND").With("challenge_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("OTP_UPDATE_FAILED").With("challenge_id", id.String()).Wrap(err)
	}
	return attempts, nil
}

// ConsumeIfOpen marks the challenge consumed unless it already was, expired
// or ran out of attempts.
func (r *OTPRepository) ConsumeIfOpen(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE otp_challenges
		SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2 AND attempts < max_attempts
	`, id.String(), at)
	if err != nil {
		return false, oops.Code("OTP_UPDATE_FAILED").With("challenge_id", id.String()).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes one challenge. Deleting a missing challenge is not an error.
func (r *OTPRepository) Delete(ctx context.Context, id ulid.ULID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id.String()); err != nil {
		return oops.Code("OTP_DELETE_FAILED").With("challenge_id", id.String()).Wrap(err)
	}
	return nil
}

// DeleteExpired removes challenges that expired before cutoff.
func (r *OTPRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("OTP_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanOTPChallenge(row pgx.Row) (*auth.OTPChallenge, error) {
	var (
		c                      auth.OTPChallenge
		idStr, channel, purpose string
	)
	err := row.Scan(
		&idStr,
		&c.Destination,
		&channel,
		&purpose,
		&c.CodeHash,
		&c.Attempts,
		&c.MaxAttempts,
		&c.ExpiresAt,
		&c.ConsumedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.ID, err = parseID(idStr, "id"); err != nil {
		return nil, err
	}
	c.Channel = notify.Channel(channel)
	c.Purpose = auth.OTPPurpose(purpose)
	return &c, nil
}
