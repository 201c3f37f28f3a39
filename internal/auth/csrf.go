// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/samber/oops"
)

// Cookie and header names shared with the web clients.
const (
	AccessCookieName  = "m360_access"
	RefreshCookieName = "m360_refresh"
	CSRFCookieName    = "m360_csrf"
	CSRFHeaderName    = "X-CSRF-Token"

	// RefreshCookiePath scopes the refresh cookie to the auth endpoints.
	RefreshCookiePath = "/api/v1/auth"
)

const csrfTokenBytes = 32

// GenerateCSRFToken returns a base64url token and the hash bound to the
// refresh-token row.
func GenerateCSRFToken() (token, hash string, err error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("CSRF_GENERATE_FAILED").Wrap(err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashCSRFToken(token), nil
}

// HashCSRFToken is the hex SHA-256 of a CSRF token.
func HashCSRFToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CheckDoubleSubmit compares the cookie value to the header value in
// constant time. Both must be present.
func CheckDoubleSubmit(cookieValue, headerValue string) error {
	if cookieValue == "" || headerValue == "" {
		return oops.Code("CSRF_MISSING").Errorf("csrf token missing")
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) != 1 {
		return oops.Code("CSRF_MISMATCH").Errorf("csrf token mismatch")
	}
	return nil
}

// CheckCSRFBinding verifies token against the hash stored with a refresh token.
func CheckCSRFBinding(token, boundHash string) error {
	if token == "" {
		return oops.Code("CSRF_MISSING").Errorf("csrf token missing")
	}
	if boundHash == "" || subtle.ConstantTimeCompare([]byte(HashCSRFToken(token)), []byte(boundHash)) != 1 {
		return oops.Code("CSRF_MISMATCH").Errorf("csrf token is not bound to this session")
	}
	return nil
}
