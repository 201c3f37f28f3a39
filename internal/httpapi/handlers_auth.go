// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/pkg/errutil"
)

type registerRequest struct {
	Email      string `json:"email" validate:"required_without=Phone,omitempty,email,max=254"`
	Phone      string `json:"phone" validate:"required_without=Email,omitempty,max=20"`
	Name       string `json:"name" validate:"required,max=100"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	Role       string `json:"role" validate:"omitempty,oneof=patient therapist"`
	RememberMe bool   `json:"remember_me"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
	RememberMe bool   `json:"remember_me"`
}

type otpRequestRequest struct {
	Destination string `json:"destination" validate:"required,max=254"`
	Purpose     string `json:"purpose" validate:"omitempty,oneof=login verify"`
}

type otpVerifyRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required,ulid"`
	Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
	RememberMe  bool   `json:"remember_me"`
}

type mfaVerifyRequest struct {
	MFAToken   string `json:"mfa_token" validate:"required"`
	Code       string `json:"code" validate:"required,max=32"`
	RememberMe bool   `json:"remember_me"`
}

// sessionRequest carries tokens for clients that cannot use cookies.
type sessionRequest struct {
	RefreshToken string `json:"refresh_token"`
	CSRFToken    string `json:"csrf_token"`
}

type userView struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
	MFAEnabled    bool   `json:"mfa_enabled"`
	MFAMethod     string `json:"mfa_method,omitempty"`
}

func newUserView(u *auth.User) *userView {
	if u == nil {
		return nil
	}
	v := &userView{
		ID:            u.ID.String(),
		Name:          u.Name,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		MFAEnabled:    u.MFA.Enabled,
	}
	if u.Email != nil {
		v.Email = *u.Email
	}
	if u.Phone != nil {
		v.Phone = *u.Phone
	}
	if u.MFA.Enabled {
		v.MFAMethod = string(u.MFA.Method)
	}
	return v
}

type tokenResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	CSRFToken       string    `json:"csrf_token"`
	SessionID       string    `json:"session_id"`
	User            *userView `json:"user,omitempty"`
	RecoveryCodes   []string  `json:"recovery_codes,omitempty"`
}

type mfaChallengeResponse struct {
	MFARequired       bool      `json:"mfa_required"`
	MFAToken          string    `json:"mfa_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	Method            string    `json:"method"`
	EnrollmentPending bool      `json:"enrollment_pending,omitempty"`
}

// writeTokens sets the session cookies and answers with the token body.
func (s *server) writeTokens(w http.ResponseWriter, status int, t *auth.Tokens) {
	s.cookies.setSessionCookies(w, t)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, tokenResponse{
		AccessToken:     t.AccessToken,
		AccessExpiresAt: t.AccessExpiresAt,
		CSRFToken:       t.CSRFToken,
		SessionID:       t.SessionID.String(),
		User:            newUserView(t.User),
		RecoveryCodes:   t.RecoveryCodes,
	})
}

func (s *server) writeLogin(w http.ResponseWriter, res *auth.LoginResult) {
	if res.MFA != nil {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusAccepted, mfaChallengeResponse{
			MFARequired:       true,
			MFAToken:          res.MFA.Token,
			ExpiresAt:         res.MFA.ExpiresAt,
			Method:            string(res.MFA.Method),
			EnrollmentPending: res.MFA.EnrollmentPending,
		})
		return
	}
	s.writeTokens(w, http.StatusOK, res.Tokens)
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Name:     req.Name,
		Password: req.Password,
		Role:     auth.Role(req.Role),
	}, clientMeta(r, req.RememberMe))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTokens(w, http.StatusCreated, tokens)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.auth.PasswordLogin(r.Context(), req.Identifier, req.Password, clientMeta(r, req.RememberMe))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLogin(w, res)
}

func (s *server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req otpRequestRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	purpose := auth.OTPPurposeLogin
	if req.Purpose != "" {
		purpose = auth.OTPPurpose(req.Purpose)
	}
	res, err := s.auth.RequestOTP(r.Context(), req.Destination, purpose)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"challenge_id": res.ChallengeID.String(),
		"channel":      string(res.Channel),
		"expires_at":   res.ExpiresAt,
	})
}

func (s *server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := ulid.ParseStrict(req.ChallengeID)
	if err != nil {
		s.writeError(w, r, oops.Code("OTP_INVALID").Wrapf(err, "bad challenge id"))
		return
	}
	res, err := s.auth.OTPLogin(r.Context(), id, req.Code, clientMeta(r, req.RememberMe))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLogin(w, res)
}

func (s *server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens, err := s.auth.VerifyMFA(r.Context(), req.MFAToken, req.Code, clientMeta(r, req.RememberMe))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTokens(w, http.StatusOK, tokens)
}

// sessionCredentials returns the refresh and CSRF tokens for refresh and
// logout. The cookie pair must pass the double-submit check; clients without
// cookies send both tokens in the body instead.
func (s *server) sessionCredentials(r *http.Request) (refresh, csrf string, err error) {
	if refresh = cookieValue(r, auth.RefreshCookieName); refresh != "" {
		csrf = r.Header.Get(auth.CSRFHeaderName)
		if err := auth.CheckDoubleSubmit(cookieValue(r, auth.CSRFCookieName), csrf); err != nil {
			return "", "", err
		}
		return refresh, csrf, nil
	}
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			return "", "", err
		}
	}
	if req.RefreshToken == "" {
		return "", "", oops.Code("TOKEN_MISSING").Errorf("refresh token missing")
	}
	csrf = req.CSRFToken
	if h := r.Header.Get(auth.CSRFHeaderName); h != "" {
		csrf = h
	}
	return req.RefreshToken, csrf, nil
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh, csrf, err := s.sessionCredentials(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens, err := s.auth.Refresh(r.Context(), refresh, csrf, clientMeta(r, false))
	if err != nil {
		if code := errutil.CodeOf(err); code == "TOKEN_REUSE_DETECTED" || code == "TOKEN_EXPIRED" || code == "TOKEN_INVALID" {
			s.cookies.clearSessionCookies(w)
		}
		s.writeError(w, r, err)
		return
	}
	s.writeTokens(w, http.StatusOK, tokens)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	refresh, csrf, err := s.sessionCredentials(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.Logout(r.Context(), refresh, csrf); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cookies.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := s.auth.LogoutAll(r.Context(), p.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cookies.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}
