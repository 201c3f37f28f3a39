// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/manas360/authcore/internal/auth"
)

// CookieConfig controls the auth cookie attributes.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

func (c CookieConfig) cookie(name, value, path string, httpOnly bool, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: httpOnly,
		SameSite: c.SameSite,
	}
	if expires.IsZero() {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.Expires = expires
		ck.MaxAge = int(time.Until(expires).Seconds())
	}
	return ck
}

// setSessionCookies writes the access, refresh and csrf cookies.
func (c CookieConfig) setSessionCookies(w http.ResponseWriter, t *auth.Tokens) {
	http.SetCookie(w, c.cookie(auth.AccessCookieName, t.AccessToken, "/", true, t.AccessExpiresAt))
	http.SetCookie(w, c.cookie(auth.RefreshCookieName, t.RefreshToken, auth.RefreshCookiePath, true, t.RefreshExpiresAt))
	// Readable by scripts so the client can echo it in X-CSRF-Token.
	http.SetCookie(w, c.cookie(auth.CSRFCookieName, t.CSRFToken, "/", false, t.RefreshExpiresAt))
}

func (c CookieConfig) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(auth.AccessCookieName, "", "/", true, time.Time{}))
	http.SetCookie(w, c.cookie(auth.RefreshCookieName, "", auth.RefreshCookiePath, true, time.Time{}))
	http.SetCookie(w, c.cookie(auth.CSRFCookieName, "", "/", false, time.Time{}))
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
