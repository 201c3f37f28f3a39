// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32
	ResetTokenExpiry = time.Hour
)

// PasswordReset is a pending password reset for a user.
type PasswordReset struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPasswordReset creates a validated reset row.
func NewPasswordReset(userID ulid.ULID, tokenHash string, expiresAt time.Time) (*PasswordReset, error) {
	if userID.IsZero() {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry cannot be zero")
	}
	return &PasswordReset{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt reports whether the reset token has expired at t.
func (r *PasswordReset) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// GenerateResetToken returns a random hex token and the SHA-256 hash stored
// in its place.
func GenerateResetToken() (token, hash string, err error) {
	token, hash, err = GenerateOpaqueToken()
	if err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return token, hash, nil
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, reset *PasswordReset) error

	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// Consume deletes an unexpired request and returns it. A token that was
	// already consumed or expired at returns ErrNotFound.
	Consume(ctx context.Context, tokenHash string, at time.Time) (*PasswordReset, error)

	// DeleteByUser removes every reset request for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes requests that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
