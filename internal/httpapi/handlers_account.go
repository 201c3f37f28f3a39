// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/webhook"
)

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128,nefield=CurrentPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type mfaEnrollRequest struct {
	Method string `json:"method" validate:"required,oneof=totp hotp"`
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type verifyDestinationRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required,ulid"`
	Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
}

type sessionView struct {
	ID         string     `json:"id"`
	UserAgent  string     `json:"user_agent"`
	IPAddress  string     `json:"ip_address"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Current    bool       `json:"current"`
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	user, err := s.auth.Profile(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       newUserView(user),
		"session_id": p.SessionID.String(),
	})
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	sessions, err := s.auth.Sessions(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionView{
			ID:         sess.ID.String(),
			UserAgent:  sess.UserAgent,
			IPAddress:  sess.IPAddress,
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			ExpiresAt:  sess.ExpiresAt,
			Current:    sess.ID == p.SessionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.ParseStrict(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, oops.Code("SESSION_NOT_FOUND").Wrapf(err, "bad session id"))
		return
	}
	if err := s.auth.RevokeSession(r.Context(), principal(r).UserID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.ChangePassword(r.Context(), principal(r).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Every session, including this one, was revoked.
	s.cookies.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleForgotPassword always answers 202 so callers cannot probe which
// emails are registered.
func (s *server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.reset.RequestReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *server) handleValidateReset(w http.ResponseWriter, r *http.Request) {
	if _, err := s.reset.ValidateToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.reset.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMFAEnroll(w http.ResponseWriter, r *http.Request) {
	var req mfaEnrollRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	enr, err := s.auth.BeginEnrollment(r.Context(), principal(r).UserID, auth.MFAMethod(req.Method))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{
		"method":           string(enr.Method),
		"secret":           enr.Secret,
		"provisioning_url": enr.URL,
	})
}

func (s *server) handleMFAConfirm(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	codes, err := s.auth.ConfirmEnrollment(r.Context(), principal(r).UserID, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{"recovery_codes": codes})
}

// handleVerifyDestination confirms the caller's own email or phone with a
// code from a purpose=verify OTP request.
func (s *server) handleVerifyDestination(w http.ResponseWriter, r *http.Request) {
	var req verifyDestinationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := ulid.ParseStrict(req.ChallengeID)
	if err != nil {
		s.writeError(w, r, oops.Code("OTP_INVALID").Wrapf(err, "bad challenge id"))
		return
	}
	user, err := s.auth.VerifyDestination(r.Context(), principal(r).UserID, id, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(user)})
}

func (s *server) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.DisableMFA(r.Context(), principal(r).UserID, req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePing(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"role":   string(p.Role),
	})
}

// signatureHeaders are checked in order for the webhook signature.
var signatureHeaders = []string{"X-Signature", "X-Webhook-Signature"}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		s.writeError(w, r, oops.Code("NOT_FOUND").Errorf("webhooks disabled"))
		return
	}
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	var signature string
	for _, h := range signatureHeaders {
		if signature = r.Header.Get(h); signature != "" {
			break
		}
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeError(w, r, oops.Code("BODY_TOO_LARGE").Wrap(err))
			return
		}
		s.writeError(w, r, oops.Code("INVALID_JSON").Wrapf(err, "read body"))
		return
	}
	ev, err := s.webhooks.Handle(r.Context(), provider, signature, body)
	if errors.Is(err, webhook.ErrDuplicate) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "event_id": ev.ID})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "event_id": ev.ID})
}
