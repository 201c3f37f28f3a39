// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    ulid.ULID
	Role      Role
	SessionID ulid.ULID
}

// SessionInfo describes one device session (refresh-token family).
type SessionInfo struct {
	ID         ulid.ULID
	UserAgent  string
	IPAddress  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
}

// Refresh exchanges a refresh token for a new token pair in the same family.
// A token that was already rotated or revoked revokes the whole family, except
// inside the reuse grace window where TOKEN_ROTATED is returned instead.
func (s *Service) Refresh(ctx context.Context, refreshToken, csrfToken string, meta ClientMeta) (*Tokens, error) {
	if refreshToken == "" {
		s.metrics.TokenRefresh(OutcomeInvalid)
		return nil, oops.Code("TOKEN_MISSING").Errorf("refresh token is required")
	}

	row, err := s.refresh.GetByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.TokenRefresh(OutcomeInvalid)
			return nil, oops.Code("TOKEN_INVALID").Errorf("invalid refresh token")
		}
		s.metrics.TokenRefresh(OutcomeError)
		return nil, oops.Code("TOKEN_REFRESH_FAILED").With("operation", "get refresh token").Wrap(err)
	}

	now := s.now()
	if row.RevokedAt != nil || row.RotatedAt != nil {
		return nil, s.handleReuse(ctx, row, now)
	}
	if row.IsExpiredAt(now) {
		s.metrics.TokenRefresh(OutcomeExpired)
		return nil, oops.Code("TOKEN_EXPIRED").Errorf("refresh token has expired")
	}
	if err := CheckCSRFBinding(csrfToken, row.CSRFHash); err != nil {
		s.metrics.TokenRefresh(OutcomeInvalid)
		return nil, err
	}

	won, err := s.refresh.MarkRotated(ctx, row.ID, now)
	if err != nil {
		s.metrics.TokenRefresh(OutcomeError)
		return nil, oops.Code("TOKEN_REFRESH_FAILED").With("operation", "mark rotated").Wrap(err)
	}
	if !won {
		// A concurrent request rotated it between our read and write.
		row.RotatedAt = &now
		return nil, s.handleReuse(ctx, row, now)
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.revokeFamily(ctx, row.FamilyID, RevokeLogoutAll, now)
			s.metrics.TokenRefresh(OutcomeInvalid)
			return nil, oops.Code("TOKEN_INVALID").Errorf("invalid refresh token")
		}
		s.metrics.TokenRefresh(OutcomeError)
		return nil, oops.Code("TOKEN_REFRESH_FAILED").With("operation", "get user").Wrap(err)
	}

	// Children keep the remember-me class of the family.
	meta.RememberMe = row.ExpiresAt.Sub(row.CreatedAt) > s.cfg.RefreshTTL
	parent := row.ID
	tokens, err := s.issueSession(ctx, user, meta, row.FamilyID, &parent, row.FamilyExpiresAt)
	if err != nil {
		s.metrics.TokenRefresh(OutcomeError)
		return nil, err
	}
	s.metrics.TokenRefresh(OutcomeSuccess)
	return tokens, nil
}

func (s *Service) handleReuse(ctx context.Context, row *RefreshToken, now time.Time) error {
	if row.RevokedAt == nil && row.RotatedAt != nil && s.cfg.ReuseGrace > 0 && now.Sub(*row.RotatedAt) <= s.cfg.ReuseGrace {
		s.metrics.TokenRefresh(OutcomeInvalid)
		return oops.Code("TOKEN_ROTATED").Errorf("refresh token was just rotated")
	}

	s.revokeFamily(ctx, row.FamilyID, RevokeReuseDetected, now)
	s.metrics.RefreshReuse()
	s.metrics.TokenRefresh(OutcomeReuse)
	s.logger.WarnContext(ctx, "refresh token reuse detected",
		"user_id", row.UserID.String(),
		"family_id", row.FamilyID.String(),
		"token_id", row.ID.String())
	return oops.Code("TOKEN_REUSE_DETECTED").
		With("family_id", row.FamilyID.String()).
		Errorf("refresh token reuse detected")
}

func (s *Service) revokeFamily(ctx context.Context, familyID ulid.ULID, reason string, now time.Time) {
	if _, err := s.refresh.RevokeFamily(ctx, familyID, reason, now); err != nil {
		s.logger.WarnContext(ctx, "revoking refresh family failed",
			"family_id", familyID.String(), "reason", reason, "error", err)
	}
}

// Logout revokes the family of refreshToken. The CSRF token must be bound to
// it. Unknown tokens are treated as already logged out.
func (s *Service) Logout(ctx context.Context, refreshToken, csrfToken string) error {
	if refreshToken == "" {
		return nil
	}
	row, err := s.refresh.GetByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "get refresh token").Wrap(err)
	}
	if err := CheckCSRFBinding(csrfToken, row.CSRFHash); err != nil {
		return err
	}
	if _, err := s.refresh.RevokeFamily(ctx, row.FamilyID, RevokeLogout, s.now()); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke family").
			With("family_id", row.FamilyID.String()).
			Wrap(err)
	}
	return nil
}

// LogoutAll revokes every family of the user and invalidates outstanding
// access tokens.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) error {
	return s.revokeEverything(ctx, userID, RevokeLogoutAll)
}

func (s *Service) revokeEverything(ctx context.Context, userID ulid.ULID, reason string) error {
	if _, err := s.refresh.RevokeAllForUser(ctx, userID, reason, s.now()); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "revoke all").With("reason", reason).Wrap(err)
	}
	if _, err := s.users.BumpTokenVersion(ctx, userID); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "bump token version").Wrap(err)
	}
	return nil
}

// Authenticate validates an access token and returns its principal.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.userForClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	sid, err := ulid.Parse(claims.SessionID)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "bad session id").Errorf("invalid token")
	}
	return &Principal{UserID: user.ID, Role: user.Role, SessionID: sid}, nil
}

// Profile returns the user behind an authenticated principal.
func (s *Service) Profile(ctx context.Context, userID ulid.ULID) (*User, error) {
	return s.getUser(ctx, userID)
}

// ChangePassword verifies the current password, stores the new one and
// revokes every session.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return errInvalidCredentials()
	}
	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "verify password").Wrap(err)
	}
	now := s.now()
	if err := s.checkLockout(user, now); err != nil {
		return err
	}
	if !valid {
		if err := s.recordFailure(ctx, user, now); err != nil {
			return err
		}
		return errInvalidCredentials()
	}
	if err := ValidatePasswordStrength(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "hash password").Wrap(err)
	}
	if _, err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "update password").Wrap(err)
	}
	if _, err := s.refresh.RevokeAllForUser(ctx, userID, RevokePasswordChange, now); err != nil {
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "revoke sessions").Wrap(err)
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return nil
}

// Sessions lists the user's active device sessions, newest first.
func (s *Service) Sessions(ctx context.Context, userID ulid.ULID) ([]SessionInfo, error) {
	rows, err := s.refresh.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").Wrap(err)
	}
	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		last := r.LastUsedAt
		if last == nil {
			created := r.CreatedAt
			last = &created
		}
		out = append(out, SessionInfo{
			ID:         r.FamilyID,
			UserAgent:  r.UserAgent,
			IPAddress:  r.IPAddress,
			CreatedAt:  ulidTime(r.FamilyID, r.CreatedAt),
			LastUsedAt: last,
			ExpiresAt:  r.ExpiresAt,
		})
	}
	return out, nil
}

// ulidTime returns the creation time embedded in a family ID.
func ulidTime(id ulid.ULID, fallback time.Time) time.Time {
	if id.IsZero() {
		return fallback
	}
	return ulid.Time(id.Time())
}

// RevokeSession revokes one of the user's device sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, familyID ulid.ULID) error {
	n, err := s.refresh.RevokeFamilyForUser(ctx, userID, familyID, RevokeSession, s.now())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").With("session_id", familyID.String()).Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", familyID.String()).Errorf("session not found")
	}
	return nil
}
