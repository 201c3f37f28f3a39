// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
)

// RecoveryCodeRepository implements auth.RecoveryCodeRepository using PostgreSQL.
type RecoveryCodeRepository struct {
	pool poolIface
}

// NewRecoveryCodeRepository creates a new RecoveryCodeRepository.
func NewRecoveryCodeRepository(pool poolIface) *RecoveryCodeRepository {
	return &RecoveryCodeRepository{pool: pool}
}

var _ auth.RecoveryCodeRepository = (*RecoveryCodeRepository)(nil)

// Replace deletes the user's codes and inserts codes in one transaction.
// An empty codes slice just clears them.
func (r *RecoveryCodeRepository) Replace(ctx context.Context, userID ulid.ULID, codes []*auth.RecoveryCode) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("RECOVERY_REPLACE_FAILED").With("operation", "begin").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID.String()); err != nil {
		return oops.Code("RECOVERY_REPLACE_FAILED").With("operation", "delete").With("user_id", userID.String()).Wrap(err)
	}
	for _, c := range codes {
		if _, err = tx.Exec(ctx, `
			INSERT INTO recovery_codes (id, user_id, code_hash, used_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, c.ID.String(), userID.String(), c.CodeHash, c.UsedAt, c.CreatedAt); err != nil {
			return oops.Code("RECOVERY_REPLACE_FAILED").With("operation", "insert").With("user_id", userID.String()).Wrap(err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return oops.Code("RECOVERY_REPLACE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// ListUnused returns the user's unused codes, oldest first.
func (r *RecoveryCodeRepository) ListUnused(ctx context.Context, userID ulid.ULID) ([]*auth.RecoveryCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM recovery_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY id
	`, userID.String())
	if err != nil {
		return nil, oops.Code("RECOVERY_QUERY_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	defer rows.Close()

	var codes []*auth.RecoveryCode
	for rows.Next() {
		var (
			c            auth.RecoveryCode
			idStr, owner string
		)
		if err := rows.Scan(&idStr, &owner, &c.CodeHash, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, oops.Code("RECOVERY_SCAN_FAILED").Wrap(err)
		}
		if c.ID, err = parseID(idStr, "id"); err != nil {
			return nil, err
		}
		if c.UserID, err = parseID(owner, "user_id"); err != nil {
			return nil, err
		}
		codes = append(codes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RECOVERY_ROWS_ERROR").Wrap(err)
	}
	return codes, nil
}

// MarkUsed consumes a code. It reports false if it was already used.
func (r *RecoveryCodeRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recovery_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id.String(), at)
	if err != nil {
		return false, oops.Code("RECOVERY_UPDATE_FAILED").With("code_id", id.String()).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}
