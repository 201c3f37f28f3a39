// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/notify"
)

// ResetDeps are the collaborators of PasswordResetService.
type ResetDeps struct {
	Users         UserRepository
	Resets        PasswordResetRepository
	RefreshTokens RefreshTokenRepository
	Hasher        PasswordHasher
	Sender        notify.Sender
	Logger        *slog.Logger
	Now           func() time.Time
}

// ResetConfig configures reset token lifetime and the emailed link.
type ResetConfig struct {
	TTL     time.Duration
	LinkURL string
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	users   UserRepository
	resets  PasswordResetRepository
	refresh RefreshTokenRepository
	hasher  PasswordHasher
	sender  notify.Sender
	logger  *slog.Logger
	now     func() time.Time
	cfg     ResetConfig
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(deps ResetDeps, cfg ResetConfig) (*PasswordResetService, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("user repository is required")
	case deps.Resets == nil:
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("reset repository is required")
	case deps.RefreshTokens == nil:
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("refresh token repository is required")
	case deps.Hasher == nil:
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("password hasher is required")
	case deps.Sender == nil:
		return nil, oops.Code("RESET_INVALID_CONFIG").Errorf("sender is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ResetTokenExpiry
	}
	s := &PasswordResetService{
		users:   deps.Users,
		resets:  deps.Resets,
		refresh: deps.RefreshTokens,
		hasher:  deps.Hasher,
		sender:  deps.Sender,
		logger:  deps.Logger,
		now:     deps.Now,
		cfg:     cfg,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// RequestReset emails a reset link when an account with that email exists.
// Unknown emails succeed silently.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get user").Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return err
	}
	reset, err := NewPasswordReset(user.ID, hash, s.now().Add(s.cfg.TTL))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").Wrap(err)
	}
	reset.CreatedAt = s.now()
	if err := s.resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "persist reset").Wrap(err)
	}

	msg := notify.Message{
		Channel: notify.ChannelEmail,
		To:      normalized,
		Subject: "Reset your MANAS360 password",
		Body: fmt.Sprintf("Use this link within %s to reset your password: %s",
			s.cfg.TTL.Round(time.Minute), s.resetLink(token)),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return oops.Code("RESET_DELIVERY_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "password reset requested", "user_id", user.ID.String())
	return nil
}

func (s *PasswordResetService) resetLink(token string) string {
	if s.cfg.LinkURL == "" {
		return token
	}
	u, err := url.Parse(s.cfg.LinkURL)
	if err != nil {
		return s.cfg.LinkURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ValidateToken returns the user a reset token belongs to.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (ulid.ULID, error) {
	reset, err := s.lookup(ctx, token)
	if err != nil {
		return ulid.ULID{}, err
	}
	return reset.UserID, nil
}

func (s *PasswordResetService) lookup(ctx context.Context, token string) (*PasswordReset, error) {
	if token == "" {
		return nil, oops.Code("RESET_TOKEN_EMPTY").Errorf("reset token cannot be empty")
	}
	reset, err := s.resets.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
		}
		return nil, oops.Code("RESET_VALIDATE_FAILED").With("operation", "get reset").Wrap(err)
	}
	if reset.IsExpiredAt(s.now()) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
	}
	return reset, nil
}

// ResetPassword sets a new password, clears any lockout and revokes every
// session of the user. The token is consumed atomically, so of two
// concurrent resets with one token exactly one succeeds.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	if _, err := s.lookup(ctx, token); err != nil {
		return err
	}
	reset, err := s.resets.Consume(ctx, HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token already used")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "consume reset").Wrap(err)
	}
	user, err := s.users.GetByID(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "get user").Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if _, err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
	}

	if err := s.resets.DeleteByUser(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete reset tokens after password reset",
			"user_id", user.ID.String(), "error", err)
	}
	if _, err := s.refresh.RevokeAllForUser(ctx, user.ID, RevokePasswordReset, s.now()); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "revoke sessions").Wrap(err)
	}
	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	return nil
}
