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

const refreshColumns = `id, family_id, parent_id, user_id, token_hash, csrf_hash, user_agent, ip_address,
	expires_at, family_expires_at, created_at, last_used_at, rotated_at, revoked_at, revoke_reason`

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool poolIface
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool poolIface) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// Create stores a new refresh token. A child token also stamps last_used_at
// on its parent.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		token.ID.String(),
		token.FamilyID.String(),
		optionalString(token.ParentID),
		token.UserID.String(),
		token.TokenHash,
		token.CSRFHash,
		token.UserAgent,
		token.IPAddress,
		token.ExpiresAt,
		token.FamilyExpiresAt,
		token.CreatedAt,
		token.LastUsedAt,
		token.RotatedAt,
		token.RevokedAt,
		nullIfEmpty(token.RevokeReason),
	)
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("user_id", token.UserID.String()).
			With("family_id", token.FamilyID.String()).
			Wrap(err)
	}
	if token.ParentID != nil {
		if _, err := r.pool.Exec(ctx,
			`UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`,
			token.ParentID.String(), token.CreatedAt); err != nil {
			return oops.Code("REFRESH_CREATE_FAILED").
				With("operation", "touch parent").
				With("parent_id", token.ParentID.String()).
				Wrap(err)
		}
	}
	return nil
}

// GetByHash retrieves a token by its SHA-256 hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_QUERY_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return token, nil
}

// MarkRotated retires a live token. Only one caller can win.
func (r *RefreshTokenRepository) MarkRotated(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET rotated_at = $2, last_used_at = $2
		WHERE id = $1 AND rotated_at IS NULL AND revoked_at IS NULL
	`, id.String(), at)
	if err != nil {
		return false, oops.Code("REFRESH_ROTATE_FAILED").With("token_id", id.String()).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeFamily revokes every token in a family that is not already revoked.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID ulid.ULID, reason string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoke_reason = $3
		WHERE family_id = $1 AND revoked_at IS NULL
	`, familyID.String(), at, reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("family_id", familyID.String()).
			With("reason", reason).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// RevokeFamilyForUser revokes a family only if it belongs to userID.
func (r *RefreshTokenRepository) RevokeFamilyForUser(ctx context.Context, userID, familyID ulid.ULID, reason string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $3, revoke_reason = $4
		WHERE family_id = $1 AND user_id = $2 AND revoked_at IS NULL
	`, familyID.String(), userID.String(), at, reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("family_id", familyID.String()).
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// RevokeAllForUser revokes every live token of a user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID, reason string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoke_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID.String(), at, reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("user_id", userID.String()).
			With("reason", reason).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// ListActive returns the live head of each family, newest family first.
func (r *RefreshTokenRepository) ListActive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.RefreshToken, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		  AND rotated_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > $2
		ORDER BY family_id DESC
	`, userID.String(), now)
	if err != nil {
		return nil, oops.Code("REFRESH_QUERY_FAILED").
			With("operation", "list active sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, oops.Code("REFRESH_SCAN_FAILED").Wrap(err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("REFRESH_ROWS_ERROR").With("operation", "iterate refresh tokens").Wrap(err)
	}
	return tokens, nil
}

// DeleteExpired removes tokens whose family cap passed before cutoff.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE family_expires_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		t                          auth.RefreshToken
		idStr, familyStr, userStr  string
		parentStr, revokeReasonPtr *string
	)
	err := row.Scan(
		&idStr,
		&familyStr,
		&parentStr,
		&userStr,
		&t.TokenHash,
		&t.CSRFHash,
		&t.UserAgent,
		&t.IPAddress,
		&t.ExpiresAt,
		&t.FamilyExpiresAt,
		&t.CreatedAt,
		&t.LastUsedAt,
		&t.RotatedAt,
		&t.RevokedAt,
		&revokeReasonPtr,
	)
	if err != nil {
		return nil, err
	}
	if t.ID, err = parseID(idStr, "id"); err != nil {
		return nil, err
	}
	if t.FamilyID, err = parseID(familyStr, "family_id"); err != nil {
		return nil, err
	}
	if t.UserID, err = parseID(userStr, "user_id"); err != nil {
		return nil, err
	}
	if t.ParentID, err = parseOptionalID(parentStr, "parent_id"); err != nil {
		return nil, err
	}
	if revokeReasonPtr != nil {
		t.RevokeReason = *revokeReasonPtr
	}
	return &t, nil
}
