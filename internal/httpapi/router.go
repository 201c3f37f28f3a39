// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package httpapi exposes the auth service over HTTP with chi.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/authz"
	"github.com/manas360/authcore/internal/webhook"
)

// AuthService is the subset of *auth.Service the API calls.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput, meta auth.ClientMeta) (*auth.Tokens, error)
	PasswordLogin(ctx context.Context, identifier, password string, meta auth.ClientMeta) (*auth.LoginResult, error)
	RequestOTP(ctx context.Context, destination string, purpose auth.OTPPurpose) (*auth.OTPRequest, error)
	OTPLogin(ctx context.Context, challengeID ulid.ULID, code string, meta auth.ClientMeta) (*auth.LoginResult, error)
	VerifyMFA(ctx context.Context, mfaToken, code string, meta auth.ClientMeta) (*auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken, csrfToken string, meta auth.ClientMeta) (*auth.Tokens, error)
	Logout(ctx context.Context, refreshToken, csrfToken string) error
	LogoutAll(ctx context.Context, userID ulid.ULID) error
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
	Profile(ctx context.Context, userID ulid.ULID) (*auth.User, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) error
	Sessions(ctx context.Context, userID ulid.ULID) ([]auth.SessionInfo, error)
	RevokeSession(ctx context.Context, userID, familyID ulid.ULID) error
	BeginEnrollment(ctx context.Context, userID ulid.ULID, method auth.MFAMethod) (*auth.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, userID ulid.ULID, code string) ([]string, error)
	DisableMFA(ctx context.Context, userID ulid.ULID, code string) error
	VerifyDestination(ctx context.Context, userID, challengeID ulid.ULID, code string) (*auth.User, error)
}

// ResetService is the subset of *auth.PasswordResetService the API calls.
type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	ValidateToken(ctx context.Context, token string) (ulid.ULID, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// WebhookHandler is the subset of *webhook.Service the API calls.
type WebhookHandler interface {
	Handle(ctx context.Context, provider, signature string, body []byte) (*webhook.Event, error)
}

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

var (
	_ AuthService    = (*auth.Service)(nil)
	_ ResetService   = (*auth.PasswordResetService)(nil)
	_ WebhookHandler = (*webhook.Service)(nil)
)

// Deps are the router's collaborators. Webhooks and Observer may be nil.
type Deps struct {
	Auth     AuthService
	Reset    ResetService
	Webhooks WebhookHandler
	Enforcer *authz.Enforcer
	Observer RequestObserver
	Logger   *slog.Logger
}

// Config tunes the router.
type Config struct {
	CORSOrigins           []string
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	AuthRateLimitRequests int
	MaxBodyBytes          int64
	Cookies               CookieConfig

	// TrustedProxies are the CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts no one.
	TrustedProxies []string
}

func (c *Config) applyDefaults() {
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Minute
	}
	if c.RateLimitRequests <= 0 {
		c.RateLimitRequests = 300
	}
	if c.AuthRateLimitRequests <= 0 {
		c.AuthRateLimitRequests = 20
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Cookies.SameSite == 0 {
		c.Cookies.SameSite = http.SameSiteStrictMode
	}
}

type server struct {
	auth     AuthService
	reset    ResetService
	webhooks WebhookHandler
	observer RequestObserver
	logger   *slog.Logger
	cookies  CookieConfig
	proxies  proxySet
	cfg      Config
}

// NewRouter builds the API handler.
func NewRouter(deps Deps, cfg Config) (http.Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("auth service is required")
	case deps.Reset == nil:
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("reset service is required")
	case deps.Enforcer == nil:
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("authz enforcer is required")
	}
	cfg.applyDefaults()
	proxies, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	s := &server{
		auth:     deps.Auth,
		reset:    deps.Reset,
		webhooks: deps.Webhooks,
		observer: deps.Observer,
		logger:   deps.Logger,
		cookies:  cfg.Cookies,
		proxies:  proxies,
		cfg:      cfg,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	gate := authz.NewMiddleware(deps.Enforcer, s.writeError, s.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(s.realIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.CSRFHeaderName},
		ExposedHeaders:   []string{"Retry-After", chimiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.limit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(s.limitBody)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, oops.Code("NOT_FOUND").Errorf("no route for %s", r.URL.Path))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.limit(cfg.AuthRateLimitRequests, cfg.RateLimitWindow))
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)
				r.Post("/otp/request", s.handleOTPRequest)
				r.Post("/otp/verify", s.handleOTPVerify)
				r.Post("/mfa/verify", s.handleMFAVerify)
				r.Post("/password/forgot", s.handleForgotPassword)
				r.Get("/password/reset/validate", s.handleValidateReset)
				r.Post("/password/reset", s.handleResetPassword)
			})

			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Use(gate.Handler)
				r.Post("/logout-all", s.handleLogoutAll)
				r.Get("/me", s.handleMe)
				r.Get("/sessions", s.handleSessions)
				r.Delete("/sessions/{id}", s.handleRevokeSession)
				r.Post("/password/change", s.handleChangePassword)
				r.Post("/mfa/enroll", s.handleMFAEnroll)
				r.Post("/mfa/confirm", s.handleMFAConfirm)
				r.Post("/mfa/disable", s.handleMFADisable)
				r.Post("/verify/confirm", s.handleVerifyDestination)
			})
		})

		r.Post("/webhooks/payments/{provider}", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(gate.Handler)
			r.Get("/admin/ping", s.handlePing)
			r.Get("/therapist/ping", s.handlePing)
			r.Get("/patient/ping", s.handlePing)
		})
	})
	return r, nil
}

func (s *server) limit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, r, oops.Code("RATE_LIMITED").Errorf("rate limit exceeded"))
		}),
	)
}

func (s *server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}

func clientMeta(r *http.Request, rememberMe bool) auth.ClientMeta {
	ua := r.UserAgent()
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return auth.ClientMeta{
		UserAgent:  ua,
		IPAddress:  hostOnly(r.RemoteAddr),
		RememberMe: rememberMe,
	}
}
