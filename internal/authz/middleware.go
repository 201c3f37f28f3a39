// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package authz

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/pkg/errutil"
)

// DenyFunc writes the response for a refused request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware enforces the policy for the principal in the request context.
// The principal must already have been placed there by authentication
// middleware.
type Middleware struct {
	enforcer *Enforcer
	deny     DenyFunc
	logger   *slog.Logger
}

// NewMiddleware returns a Middleware. A nil deny writes a minimal JSON error.
func NewMiddleware(enforcer *Enforcer, deny DenyFunc, logger *slog.Logger) *Middleware {
	if deny == nil {
		deny = defaultDeny
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{enforcer: enforcer, deny: deny, logger: logger}
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			m.deny(w, r, oops.Code("AUTH_REQUIRED").Errorf("authentication required"))
			return
		}

		allowed, err := m.enforcer.Authorize(string(p.Role), r.URL.Path, r.Method)
		if err != nil {
			errutil.LogError(m.logger, "authorization check failed", err)
			m.deny(w, r, err)
			return
		}
		if !allowed {
			m.logger.InfoContext(r.Context(), "request forbidden",
				"user_id", p.UserID.String(),
				"role", string(p.Role),
				"path", r.URL.Path,
				"method", r.Method)
			m.deny(w, r, oops.Code("AUTHZ_FORBIDDEN").
				With("role", string(p.Role)).
				Errorf("insufficient permissions"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func defaultDeny(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusForbidden
	code := errutil.CodeOf(err)
	switch code {
	case "AUTH_REQUIRED":
		status = http.StatusUnauthorized
	case "AUTHZ_FORBIDDEN":
	default:
		status = http.StatusInternalServerError
		code = "INTERNAL_ERROR"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": http.StatusText(status)},
	})
}
