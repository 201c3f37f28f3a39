// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360/authcore/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TOKEN_REUSE_DETECTED").
		With("family_id", "01J0000000000000000000000").
		Errorf("refresh token reused")

	errutil.LogError(logger, "refresh failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "refresh failed", logEntry["msg"])
	assert.Equal(t, "TOKEN_REUSE_DETECTED", logEntry["code"])
	assert.Contains(t, logEntry, "context")
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogWarn(context.Background(), logger, "update last used failed",
		oops.Code("REFRESH_TOKEN_TOUCH_FAILED").Errorf("boom"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "WARN", logEntry["level"])
	assert.Equal(t, "REFRESH_TOKEN_TOUCH_FAILED", logEntry["code"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", errutil.CodeOf(nil))
	assert.Equal(t, "", errutil.CodeOf(errors.New("plain")))
	assert.Equal(t, "OTP_EXPIRED", errutil.CodeOf(oops.Code("OTP_EXPIRED").Errorf("expired")))

	wrapped := oops.With("operation", "verify").Wrap(oops.Code("OTP_INVALID").Errorf("bad code"))
	assert.Equal(t, "OTP_INVALID", errutil.CodeOf(wrapped))
}
