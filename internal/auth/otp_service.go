// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/notify"
)

// defaultOTPName names accounts auto-registered from an OTP login until the
// patient completes their profile.
const defaultOTPName = "MANAS360 Member"

// OTPRequest is what a client learns after requesting a passcode.
type OTPRequest struct {
	ChallengeID ulid.ULID
	Channel     notify.Channel
	ExpiresAt   time.Time
}

// RequestOTP sends a passcode to an email or phone. Unknown destinations
// get an indistinguishable response: a challenge is stored (so the cooldown
// applies the same way) but nothing is sent, unless auto-registration is on.
func (s *Service) RequestOTP(ctx context.Context, destination string, purpose OTPPurpose) (*OTPRequest, error) {
	if !purpose.Valid() {
		return nil, oops.Code("OTP_INVALID_PURPOSE").With("purpose", string(purpose)).Errorf("unknown purpose")
	}
	dest, channel, err := ResolveDestination(destination)
	if err != nil {
		return nil, err
	}
	now := s.now()

	latest, err := s.otps.Latest(ctx, dest, purpose)
	switch {
	case err == nil:
		if wait := latest.CreatedAt.Add(s.cfg.OTP.Cooldown).Sub(now); wait > 0 {
			return nil, oops.Code("OTP_COOLDOWN").
				With("retry_after", wait.Round(time.Second)).
				Errorf("please wait before requesting another code")
		}
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("OTP_REQUEST_FAILED").With("operation", "latest challenge").Wrap(err)
	}

	send := true
	if _, err := s.userByDestination(ctx, dest, channel); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("OTP_REQUEST_FAILED").With("operation", "lookup user").Wrap(err)
		}
		send = purpose == OTPPurposeLogin && s.cfg.OTP.AutoRegister
	}

	if _, err := s.otps.InvalidateOpen(ctx, dest, purpose, now); err != nil {
		s.logger.WarnContext(ctx, "invalidating previous otp challenges failed", "error", err)
	}

	code, err := GenerateOTPCode(s.cfg.OTP.Length)
	if err != nil {
		return nil, err
	}
	challenge, err := NewOTPChallenge(dest, channel, purpose, code, s.cfg.OTP.Pepper, s.cfg.OTP.MaxAttempts, s.cfg.OTP.TTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.otps.Create(ctx, challenge); err != nil {
		return nil, oops.Code("OTP_REQUEST_FAILED").With("operation", "persist challenge").Wrap(err)
	}
	res := &OTPRequest{ChallengeID: challenge.ID, Channel: channel, ExpiresAt: challenge.ExpiresAt}
	if !send {
		return res, nil
	}

	msg := notify.Message{
		Channel: channel,
		To:      dest,
		Subject: "Your MANAS360 verification code",
		Body:    fmt.Sprintf("Your MANAS360 verification code is %s. It expires in %d minutes.", code, int(s.cfg.OTP.TTL.Minutes())),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.OTPDelivery(string(channel), OutcomeError)
		// An undelivered code must not hold the destination in cooldown.
		if derr := s.otps.Delete(ctx, challenge.ID); derr != nil {
			s.logger.WarnContext(ctx, "dropping undelivered otp challenge failed",
				"challenge_id", challenge.ID.String(), "error", derr)
		}
		return nil, oops.Code("OTP_DELIVERY_FAILED").With("channel", string(channel)).Wrap(err)
	}
	s.metrics.OTPDelivery(string(channel), OutcomeSuccess)
	return res, nil
}

// VerifyOTP checks code against a challenge and consumes it on success. A
// challenge can be consumed exactly once.
func (s *Service) VerifyOTP(ctx context.Context, challengeID ulid.ULID, code string) (*OTPChallenge, error) {
	return s.verifyOTP(ctx, challengeID, code, nil)
}

// verifyOTP is VerifyOTP with an admission check. A challenge accept rejects
// is answered as OTP_INVALID before any attempt is counted or the challenge
// is consumed.
func (s *Service) verifyOTP(ctx context.Context, challengeID ulid.ULID, code string, accept func(*OTPChallenge) bool) (*OTPChallenge, error) {
	challenge, err := s.otps.GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("OTP_INVALID").Errorf("invalid code")
		}
		return nil, oops.Code("OTP_VERIFY_FAILED").With("operation", "get challenge").Wrap(err)
	}
	if accept != nil && !accept(challenge) {
		return nil, oops.Code("OTP_INVALID").Errorf("invalid code")
	}

	now := s.now()
	switch {
	case challenge.ConsumedAt != nil:
		return nil, oops.Code("OTP_CONSUMED").Errorf("code already used")
	case challenge.IsExpiredAt(now):
		return nil, oops.Code("OTP_EXPIRED").Errorf("code has expired")
	case challenge.Attempts >= challenge.MaxAttempts:
		return nil, oops.Code("OTP_ATTEMPTS_EXCEEDED").Errorf("too many attempts")
	}

	if !challenge.Matches(s.cfg.OTP.Pepper, code) {
		attempts, err := s.otps.IncrementAttempts(ctx, challenge.ID)
		if err != nil {
			return nil, oops.Code("OTP_VERIFY_FAILED").With("operation", "increment attempts").Wrap(err)
		}
		if attempts >= challenge.MaxAttempts {
			return nil, oops.Code("OTP_ATTEMPTS_EXCEEDED").Errorf("too many attempts")
		}
		return nil, oops.Code("OTP_INVALID").
			With("attempts_remaining", challenge.MaxAttempts-attempts).
			Errorf("invalid code")
	}

	consumed, err := s.otps.ConsumeIfOpen(ctx, challenge.ID, now)
	if err != nil {
		return nil, oops.Code("OTP_VERIFY_FAILED").With("operation", "consume challenge").Wrap(err)
	}
	if !consumed {
		return nil, oops.Code("OTP_CONSUMED").Errorf("code already used")
	}
	challenge.ConsumedAt = &now
	return challenge, nil
}

// OTPLogin completes a passwordless login with a verified login challenge.
// Challenges issued for other purposes are rejected without being consumed.
func (s *Service) OTPLogin(ctx context.Context, challengeID ulid.ULID, code string, meta ClientMeta) (*LoginResult, error) {
	challenge, err := s.verifyOTP(ctx, challengeID, code, func(c *OTPChallenge) bool {
		return c.Purpose == OTPPurposeLogin
	})
	if err != nil {
		s.metrics.LoginAttempt(MethodOTP, OutcomeInvalid)
		return nil, err
	}

	now := s.now()
	user, err := s.userByDestination(ctx, challenge.Destination, challenge.Channel)
	switch {
	case errors.Is(err, ErrNotFound) && s.cfg.OTP.AutoRegister:
		user, err = s.autoRegister(ctx, challenge)
		if err != nil {
			s.metrics.LoginAttempt(MethodOTP, OutcomeError)
			return nil, err
		}
	case errors.Is(err, ErrNotFound):
		s.metrics.LoginAttempt(MethodOTP, OutcomeInvalid)
		return nil, oops.Code("OTP_INVALID").Errorf("invalid code")
	case err != nil:
		s.metrics.LoginAttempt(MethodOTP, OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "lookup user").Wrap(err)
	}

	if err := s.checkLockout(user, now); err != nil {
		s.metrics.LoginAttempt(MethodOTP, OutcomeLocked)
		return nil, err
	}
	if markVerified(user, challenge.Channel) {
		s.bestEffortUpdate(ctx, user, "mark destination verified")
	}

	if user.RequiresMFA() {
		mfa, err := s.mfaChallenge(user)
		if err != nil {
			return nil, err
		}
		s.metrics.LoginAttempt(MethodOTP, OutcomeMFARequired)
		return &LoginResult{MFA: mfa}, nil
	}

	s.recordSuccess(ctx, user, now)
	tokens, err := s.issueSession(ctx, user, meta, ulid.ULID{}, nil, time.Time{})
	if err != nil {
		s.metrics.LoginAttempt(MethodOTP, OutcomeError)
		return nil, err
	}
	s.metrics.LoginAttempt(MethodOTP, OutcomeSuccess)
	return &LoginResult{Tokens: tokens}, nil
}

// VerifyDestination confirms that a signed-in user controls their own email
// or phone using a verify-purpose challenge, and marks it verified.
func (s *Service) VerifyDestination(ctx context.Context, userID, challengeID ulid.ULID, code string) (*User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	challenge, err := s.verifyOTP(ctx, challengeID, code, func(c *OTPChallenge) bool {
		return c.Purpose == OTPPurposeVerify && ownsDestination(user, c)
	})
	if err != nil {
		return nil, err
	}
	if !markVerified(user, challenge.Channel) {
		return user, nil
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, oops.Code("OTP_VERIFY_FAILED").With("operation", "mark destination verified").Wrap(err)
	}
	s.logger.InfoContext(ctx, "destination verified", "user_id", user.ID.String(), "channel", string(challenge.Channel))
	return user, nil
}

func ownsDestination(user *User, c *OTPChallenge) bool {
	if c.Channel == notify.ChannelEmail {
		return user.Email != nil && *user.Email == c.Destination
	}
	return user.Phone != nil && *user.Phone == c.Destination
}

func (s *Service) userByDestination(ctx context.Context, dest string, channel notify.Channel) (*User, error) {
	if channel == notify.ChannelEmail {
		return s.users.GetByEmail(ctx, dest)
	}
	return s.users.GetByPhone(ctx, dest)
}

func (s *Service) autoRegister(ctx context.Context, challenge *OTPChallenge) (*User, error) {
	var email, phone string
	if challenge.Channel == notify.ChannelEmail {
		email = challenge.Destination
	} else {
		phone = challenge.Destination
	}
	user, err := NewUser(email, phone, defaultOTPName, RolePatient, "")
	if err != nil {
		return nil, err
	}
	markVerified(user, challenge.Channel)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "auto-register").Wrap(err)
	}
	s.logger.InfoContext(ctx, "patient auto-registered from otp login", "user_id", user.ID.String())
	return user, nil
}

// markVerified sets the verified flag for channel and reports whether it changed.
func markVerified(user *User, channel notify.Channel) bool {
	flag := &user.PhoneVerified
	if channel == notify.ChannelEmail {
		flag = &user.EmailVerified
	}
	if *flag {
		return false
	}
	*flag = true
	return true
}
