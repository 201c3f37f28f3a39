// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/oops"

	"github.com/manas360/authcore/pkg/errutil"
)

// apiError is the client-facing view of an error code.
type apiError struct {
	status  int
	message string
}

// errorTable maps error codes to responses. Codes missing here are answered
// as 500 INTERNAL_ERROR so internal detail never reaches clients.
var errorTable = map[string]apiError{
	"INVALID_JSON":      {http.StatusBadRequest, "request body is not valid JSON"},
	"VALIDATION_FAILED": {http.StatusBadRequest, "request validation failed"},
	"BODY_TOO_LARGE":    {http.StatusRequestEntityTooLarge, "request body too large"},
	"NOT_FOUND":         {http.StatusNotFound, "not found"},
	"RATE_LIMITED":      {http.StatusTooManyRequests, "too many requests"},

	"AUTH_REQUIRED":            {http.StatusUnauthorized, "authentication required"},
	"AUTH_INVALID_CREDENTIALS": {http.StatusUnauthorized, "invalid credentials"},
	"AUTH_ACCOUNT_LOCKED":      {http.StatusLocked, "account is temporarily locked"},
	"AUTH_TOO_MANY_ATTEMPTS":   {http.StatusTooManyRequests, "too many attempts, try again shortly"},
	"AUTH_IDENTITY_TAKEN":      {http.StatusConflict, "an account with this email or phone already exists"},
	"AUTH_IDENTITY_REQUIRED":   {http.StatusBadRequest, "email or phone is required"},
	"AUTH_INVALID_EMAIL":       {http.StatusBadRequest, "invalid email address"},
	"AUTH_INVALID_PHONE":       {http.StatusBadRequest, "invalid phone number"},
	"AUTH_INVALID_NAME":        {http.StatusBadRequest, "invalid name"},
	"AUTH_INVALID_ROLE":        {http.StatusBadRequest, "invalid role"},
	"AUTH_ROLE_NOT_ALLOWED":    {http.StatusForbidden, "role cannot self-register"},
	"AUTH_WEAK_PASSWORD":       {http.StatusBadRequest, "password does not meet requirements"},
	"AUTH_EMPTY_PASSWORD":      {http.StatusBadRequest, "password is required"},

	"TOKEN_MISSING":        {http.StatusUnauthorized, "token missing"},
	"TOKEN_INVALID":        {http.StatusUnauthorized, "token invalid"},
	"TOKEN_EXPIRED":        {http.StatusUnauthorized, "token expired"},
	"TOKEN_REUSE_DETECTED": {http.StatusUnauthorized, "session revoked"},
	"TOKEN_ROTATED":        {http.StatusConflict, "token already rotated"},

	"CSRF_MISSING":  {http.StatusForbidden, "csrf token missing"},
	"CSRF_MISMATCH": {http.StatusForbidden, "csrf token mismatch"},

	"AUTHZ_FORBIDDEN": {http.StatusForbidden, "insufficient permissions"},

	"OTP_INVALID":             {http.StatusUnauthorized, "invalid code"},
	"OTP_EXPIRED":             {http.StatusUnauthorized, "code expired"},
	"OTP_CONSUMED":            {http.StatusConflict, "code already used"},
	"OTP_ATTEMPTS_EXCEEDED":   {http.StatusTooManyRequests, "too many attempts"},
	"OTP_COOLDOWN":            {http.StatusTooManyRequests, "please wait before requesting another code"},
	"OTP_INVALID_DESTINATION": {http.StatusBadRequest, "invalid destination"},
	"OTP_INVALID_PURPOSE":     {http.StatusBadRequest, "invalid purpose"},
	"OTP_DELIVERY_FAILED":     {http.StatusBadGateway, "could not deliver code"},
	"NOTIFY_UNAVAILABLE":      {http.StatusServiceUnavailable, "delivery temporarily unavailable"},

	"MFA_INVALID_CODE":        {http.StatusUnauthorized, "invalid code"},
	"MFA_INVALID_METHOD":      {http.StatusBadRequest, "invalid mfa method"},
	"MFA_ALREADY_ENABLED":     {http.StatusConflict, "mfa already enabled"},
	"MFA_NOT_ENABLED":         {http.StatusConflict, "mfa not enabled"},
	"MFA_NOT_PENDING":         {http.StatusConflict, "no pending enrollment"},
	"MFA_REQUIRED_FOR_ROLE":   {http.StatusForbidden, "mfa is required for this role"},
	"MFA_ENROLLMENT_REQUIRED": {http.StatusForbidden, "mfa enrollment required"},

	"USER_NOT_FOUND":    {http.StatusNotFound, "user not found"},
	"SESSION_NOT_FOUND": {http.StatusNotFound, "session not found"},

	"RESET_TOKEN_EMPTY":     {http.StatusBadRequest, "reset token required"},
	"RESET_TOKEN_INVALID":   {http.StatusBadRequest, "reset link is invalid"},
	"RESET_TOKEN_EXPIRED":   {http.StatusBadRequest, "reset link has expired"},
	"RESET_DELIVERY_FAILED": {http.StatusBadGateway, "could not send reset email"},

	"WEBHOOK_SIGNATURE_INVALID": {http.StatusUnauthorized, "invalid signature"},
	"WEBHOOK_TIMESTAMP_STALE":   {http.StatusUnauthorized, "stale signature"},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor returns the HTTP status and public message for err.
func statusFor(err error) (code string, e apiError) {
	code = errutil.CodeOf(err)
	if e, ok := errorTable[code]; ok {
		return code, e
	}
	return "INTERNAL_ERROR", apiError{http.StatusInternalServerError, "internal error"}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, e := statusFor(err)
	if e.status >= http.StatusInternalServerError {
		errutil.LogError(s.logger.With("request_id", requestID(r), "path", r.URL.Path), "request failed", err)
	}
	if retry, ok := retryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	body := errorBody{Error: errorDetail{Code: code, Message: e.message}}
	if fe, ok := asFieldErrors(err); ok {
		body.Error.Fields = fe
	}
	writeJSON(w, e.status, body)
}

// retryAfter extracts a retry_after duration from the error context in whole
// seconds, rounded up.
func retryAfter(err error) (int, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	d, ok := oopsErr.Context()["retry_after"].(time.Duration)
	if !ok || d <= 0 {
		return 0, false
	}
	return int(math.Ceil(d.Seconds())), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}
