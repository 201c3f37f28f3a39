// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Refresh token configuration.
const (
	RefreshTokenBytes  = 32
	RefreshTokenExpiry = 7 * 24 * time.Hour
	RememberMeExpiry   = 30 * 24 * time.Hour
)

// Revoke reasons stored on refresh-token rows.
const (
	RevokeLogout         = "logout"
	RevokeLogoutAll      = "logout_all"
	RevokeReuseDetected  = "reuse_detected"
	RevokePasswordChange = "password_change"
	RevokePasswordReset  = "password_reset"
	RevokeSession        = "session_revoked"
)

// RefreshToken is one link in a refresh-token family. Only the SHA-256 of the
// opaque token is stored.
type RefreshToken struct {
	ID       ulid.ULID
	FamilyID ulid.ULID
	// ParentID is nil for the token issued at login.
	ParentID        *ulid.ULID
	UserID          ulid.ULID
	TokenHash       string
	CSRFHash        string
	UserAgent       string
	IPAddress       string
	ExpiresAt       time.Time
	FamilyExpiresAt time.Time
	CreatedAt       time.Time
	LastUsedAt      *time.Time
	RotatedAt       *time.Time
	RevokedAt       *time.Time
	RevokeReason    string
}

// NewRefreshToken creates a validated token row. A zero familyID starts a
// new family whose ID equals the token ID. expiresAt is clamped to
// familyExpiresAt.
func NewRefreshToken(userID, familyID ulid.ULID, parentID *ulid.ULID, tokenHash, csrfHash, userAgent, ipAddress string, expiresAt, familyExpiresAt time.Time) (*RefreshToken, error) {
	if userID.IsZero() {
		return nil, oops.Code("REFRESH_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" || csrfHash == "" {
		return nil, oops.Code("REFRESH_INVALID_HASH").Errorf("token and csrf hashes are required")
	}
	if expiresAt.IsZero() || familyExpiresAt.IsZero() {
		return nil, oops.Code("REFRESH_INVALID_EXPIRY").Errorf("expiry cannot be zero")
	}

	id := ulid.Make()
	if familyID.IsZero() {
		familyID = id
	}
	if expiresAt.After(familyExpiresAt) {
		expiresAt = familyExpiresAt
	}
	return &RefreshToken{
		ID:              id,
		FamilyID:        familyID,
		ParentID:        parentID,
		UserID:          userID,
		TokenHash:       tokenHash,
		CSRFHash:        csrfHash,
		UserAgent:       userAgent,
		IPAddress:       ipAddress,
		ExpiresAt:       expiresAt,
		FamilyExpiresAt: familyExpiresAt,
		CreatedAt:       time.Now(),
	}, nil
}

// IsExpiredAt reports whether the token is past its expiry at t.
func (r *RefreshToken) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// IsActive reports whether the token may still be exchanged.
func (r *RefreshToken) IsActive(t time.Time) bool {
	return r.RotatedAt == nil && r.RevokedAt == nil && !r.IsExpiredAt(t)
}

// GenerateOpaqueToken returns 32 random bytes hex encoded and their SHA-256.
// The plaintext goes to the client; only the hash is stored.
func GenerateOpaqueToken() (token, hash string, err error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken is the hex SHA-256 of an opaque token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyTokenHash compares token against a stored hash in constant time.
func VerifyTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}

// RefreshTokenRepository manages refresh-token persistence.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error

	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// MarkRotated sets rotated_at only while the row is neither rotated nor
	// revoked. It reports whether this call won.
	MarkRotated(ctx context.Context, id ulid.ULID, at time.Time) (bool, error)

	// RevokeFamily revokes every live token in the family.
	RevokeFamily(ctx context.Context, familyID ulid.ULID, reason string, at time.Time) (int64, error)

	// RevokeFamilyForUser is RevokeFamily scoped to an owner; zero rows
	// means the family does not belong to userID or is already revoked.
	RevokeFamilyForUser(ctx context.Context, userID, familyID ulid.ULID, reason string, at time.Time) (int64, error)

	RevokeAllForUser(ctx context.Context, userID ulid.ULID, reason string, at time.Time) (int64, error)

	// ListActive returns the live head token of each of the user's families,
	// newest first.
	ListActive(ctx context.Context, userID ulid.ULID, now time.Time) ([]*RefreshToken, error)

	// DeleteExpired removes tokens whose family expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
