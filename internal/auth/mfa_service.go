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

// VerifyMFA completes a login that stopped at the second factor. A pending
// enrollment is confirmed by the first good code and its recovery codes are
// returned in Tokens.RecoveryCodes. Failures count toward lockout.
func (s *Service) VerifyMFA(ctx context.Context, mfaToken, code string, meta ClientMeta) (*Tokens, error) {
	claims, err := s.tokens.ParseMFAPending(mfaToken)
	if err != nil {
		s.metrics.LoginAttempt(MethodMFA, OutcomeInvalid)
		return nil, err
	}
	user, err := s.userForClaims(ctx, claims)
	if err != nil {
		s.metrics.LoginAttempt(MethodMFA, OutcomeInvalid)
		return nil, err
	}

	now := s.now()
	if err := s.checkLockout(user, now); err != nil {
		s.metrics.LoginAttempt(MethodMFA, OutcomeLocked)
		return nil, err
	}

	pending := user.MFA.Pending()
	ok, err := s.verifySecondFactor(ctx, user, code, now)
	if err != nil {
		s.metrics.LoginAttempt(MethodMFA, OutcomeError)
		return nil, err
	}
	if !ok {
		s.metrics.LoginAttempt(MethodMFA, OutcomeInvalid)
		if err := s.recordFailure(ctx, user, now); err != nil {
			return nil, err
		}
		return nil, oops.Code("MFA_INVALID_CODE").Errorf("invalid verification code")
	}

	var recoveryCodes []string
	if pending {
		recoveryCodes, err = s.enableMFA(ctx, user, now)
		if err != nil {
			s.metrics.LoginAttempt(MethodMFA, OutcomeError)
			return nil, err
		}
	}

	s.recordSuccess(ctx, user, now)
	tokens, err := s.issueSession(ctx, user, meta, ulid.ULID{}, nil, time.Time{})
	if err != nil {
		s.metrics.LoginAttempt(MethodMFA, OutcomeError)
		return nil, err
	}
	tokens.RecoveryCodes = recoveryCodes
	s.metrics.LoginAttempt(MethodMFA, OutcomeSuccess)
	return tokens, nil
}

// verifySecondFactor accepts an authenticator code or, once MFA is enabled,
// an unused recovery code. Accepted authenticator codes advance the stored
// counter or last step with a compare-and-set, so a code replayed by a
// concurrent request loses.
func (s *Service) verifySecondFactor(ctx context.Context, user *User, code string, now time.Time) (bool, error) {
	if user.MFA.Enabled && IsRecoveryCodeFormat(code) {
		return s.consumeRecoveryCode(ctx, user, code, now)
	}

	next, ok := s.cfg.MFA.VerifyOTPCode(user.MFA, code, now)
	if !ok {
		return false, nil
	}
	advanced, err := s.users.AdvanceMFA(ctx, user.ID, user.MFA, next)
	if err != nil {
		return false, oops.Code("MFA_VERIFY_FAILED").With("operation", "persist mfa state").Wrap(err)
	}
	if !advanced {
		s.logger.WarnContext(ctx, "mfa code raced a concurrent verification", "user_id", user.ID.String())
		return false, nil
	}
	user.MFA = next
	return true, nil
}

func (s *Service) consumeRecoveryCode(ctx context.Context, user *User, code string, now time.Time) (bool, error) {
	codes, err := s.recovery.ListUnused(ctx, user.ID)
	if err != nil {
		return false, oops.Code("MFA_VERIFY_FAILED").With("operation", "list recovery codes").Wrap(err)
	}
	normalized := NormalizeRecoveryCode(code)
	for _, rc := range codes {
		match, err := s.hasher.Verify(normalized, rc.CodeHash)
		if err != nil || !match {
			continue
		}
		used, err := s.recovery.MarkUsed(ctx, rc.ID, now)
		if err != nil {
			return false, oops.Code("MFA_VERIFY_FAILED").With("operation", "mark recovery code used").Wrap(err)
		}
		if used {
			s.logger.WarnContext(ctx, "recovery code used", "user_id", user.ID.String(), "remaining", len(codes)-1)
		}
		return used, nil
	}
	return false, nil
}

// enableMFA turns on a pending enrollment and issues fresh recovery codes.
func (s *Service) enableMFA(ctx context.Context, user *User, now time.Time) ([]string, error) {
	codes, err := GenerateRecoveryCodes(RecoveryCodeCount)
	if err != nil {
		return nil, err
	}
	rows := make([]*RecoveryCode, 0, len(codes))
	for _, c := range codes {
		hash, err := s.hasher.Hash(c)
		if err != nil {
			return nil, oops.Code("MFA_ENROLL_FAILED").With("operation", "hash recovery code").Wrap(err)
		}
		rows = append(rows, &RecoveryCode{ID: ulid.Make(), UserID: user.ID, CodeHash: hash, CreatedAt: now})
	}
	if err := s.recovery.Replace(ctx, user.ID, rows); err != nil {
		return nil, oops.Code("MFA_ENROLL_FAILED").With("operation", "store recovery codes").Wrap(err)
	}

	state := user.MFA
	state.Enabled = true
	state.EnrolledAt = &now
	if err := s.users.UpdateMFA(ctx, user.ID, state); err != nil {
		return nil, oops.Code("MFA_ENROLL_FAILED").With("operation", "enable mfa").Wrap(err)
	}
	user.MFA = state
	s.logger.InfoContext(ctx, "mfa enabled", "user_id", user.ID.String(), "method", string(state.Method))
	return codes, nil
}

// BeginEnrollment issues a new pending secret. It is rejected once MFA is enabled.
func (s *Service) BeginEnrollment(ctx context.Context, userID ulid.ULID, method MFAMethod) (*Enrollment, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFA.Enabled {
		return nil, oops.Code("MFA_ALREADY_ENABLED").Errorf("mfa is already enabled")
	}
	enrollment, err := s.cfg.MFA.GenerateMFASecret(method, user.Identifier())
	if err != nil {
		return nil, err
	}
	state := MFAState{Method: method, Secret: enrollment.Secret}
	if err := s.users.UpdateMFA(ctx, user.ID, state); err != nil {
		return nil, oops.Code("MFA_ENROLL_FAILED").With("operation", "store pending secret").Wrap(err)
	}
	return enrollment, nil
}

// ConfirmEnrollment verifies the first code from the authenticator, enables
// MFA and returns the recovery codes. They are not retrievable later.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID ulid.ULID, code string) ([]string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFA.Pending() {
		return nil, oops.Code("MFA_NOT_PENDING").Errorf("no pending mfa enrollment")
	}
	now := s.now()
	ok, err := s.verifySecondFactor(ctx, user, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oops.Code("MFA_INVALID_CODE").Errorf("invalid verification code")
	}
	return s.enableMFA(ctx, user, now)
}

// DisableMFA removes the second factor after checking a current code.
// Admins cannot disable MFA.
func (s *Service) DisableMFA(ctx context.Context, userID ulid.ULID, code string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == RoleAdmin {
		return oops.Code("MFA_REQUIRED_FOR_ROLE").With("role", string(user.Role)).Errorf("mfa is mandatory for this role")
	}
	if !user.MFA.Enabled {
		return oops.Code("MFA_NOT_ENABLED").Errorf("mfa is not enabled")
	}
	ok, err := s.verifySecondFactor(ctx, user, code, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return oops.Code("MFA_INVALID_CODE").Errorf("invalid verification code")
	}
	if err := s.users.UpdateMFA(ctx, user.ID, MFAState{Method: MFANone}); err != nil {
		return oops.Code("MFA_DISABLE_FAILED").Wrap(err)
	}
	if err := s.recovery.Replace(ctx, user.ID, nil); err != nil {
		s.logger.WarnContext(ctx, "clearing recovery codes failed", "user_id", user.ID.String(), "error", err)
	}
	return nil
}

func (s *Service) getUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Errorf("user not found")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("operation", "get user").Wrap(err)
	}
	return user, nil
}

// userForClaims loads the token subject and rejects tokens minted before
// the user's last token-version bump.
func (s *Service) userForClaims(ctx context.Context, claims *Claims) (*User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_INVALID").Errorf("invalid token")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("operation", "get user").Wrap(err)
	}
	if user.TokenVersion != claims.Version {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "token version changed").Errorf("invalid token")
	}
	return user, nil
}
