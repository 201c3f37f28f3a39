// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/auth"
)

// logRequests logs one line per request and feeds the request observer.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		if s.observer != nil {
			s.observer.ObserveRequest(r.Method, route, status, elapsed)
		}

		level := s.logger.Info
		if status >= http.StatusInternalServerError {
			level = s.logger.Error
		}
		level("http request",
			"request_id", requestID(r),
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"remote_ip", hostOnly(r.RemoteAddr))
	})
}

// authenticate resolves the access token from the Authorization header or
// the access cookie. Cookie-authenticated unsafe requests must also pass the
// CSRF double-submit check.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := accessToken(r)
		if token == "" {
			s.writeError(w, r, oops.Code("AUTH_REQUIRED").Errorf("no access token"))
			return
		}
		if fromCookie && !isSafeMethod(r.Method) {
			if err := auth.CheckDoubleSubmit(cookieValue(r, auth.CSRFCookieName), r.Header.Get(auth.CSRFHeaderName)); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		p, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func accessToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), false
		}
		return "", false
	}
	return cookieValue(r, auth.AccessCookieName), true
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func principal(r *http.Request) *auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
