// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360/authcore/pkg/errutil"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   string
		wantFields []string
	}{
		{name: "valid", body: `{"challenge_id":"01J9ZQ3V8K6M2N4P5R7S9T0V1W","code":"123456"}`},
		{name: "empty body", body: ``, wantCode: "INVALID_JSON"},
		{name: "malformed", body: `{"code":`, wantCode: "INVALID_JSON"},
		{name: "unknown field", body: `{"code":"123456","extra":1}`, wantCode: "INVALID_JSON"},
		{name: "bad id and code", body: `{"challenge_id":"nope","code":"12ab"}`, wantCode: "VALIDATION_FAILED", wantFields: []string{"challenge_id", "code"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst otpVerifyRequest
			err := decode(req, &dst)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "123456", dst.Code)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if len(tt.wantFields) > 0 {
				fields, ok := asFieldErrors(err)
				require.True(t, ok)
				for _, f := range tt.wantFields {
					assert.Contains(t, fields, f)
				}
			}
		})
	}
}

func TestDecode_BodyLimit(t *testing.T) {
	t.Run("over the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"`+strings.Repeat("1", 200)+`"}`))
		req.Body = http.MaxBytesReader(rec, req.Body, 64)

		var dst otpVerifyRequest
		err := decode(req, &dst)
		errutil.AssertErrorCode(t, err, "BODY_TOO_LARGE")
		code, e := statusFor(err)
		assert.Equal(t, "BODY_TOO_LARGE", code)
		assert.Equal(t, http.StatusRequestEntityTooLarge, e.status)
	})

	t.Run("exactly at the limit", func(t *testing.T) {
		body := `{"challenge_id":"01J9ZQ3V8K6M2N4P5R7S9T0V1W","code":"123456"}`
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Body = http.MaxBytesReader(rec, req.Body, int64(len(body)))

		var dst otpVerifyRequest
		require.NoError(t, decode(req, &dst))
	})

	t.Run("whitespace only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(" \n\t"))
		var dst otpVerifyRequest
		errutil.AssertErrorCode(t, decode(req, &dst), "INVALID_JSON")
	})
}

func TestStatusFor_UnknownCodeIsInternal(t *testing.T) {
	code, e := statusFor(assert.AnError)
	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.Equal(t, http.StatusInternalServerError, e.status)
}
