// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/pkg/errutil"
)

func TestGenerateCSRFToken(t *testing.T) {
	token, hash, err := auth.GenerateCSRFToken()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, auth.HashCSRFToken(token), hash)

	other, _, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestCheckDoubleSubmit(t *testing.T) {
	require.NoError(t, auth.CheckDoubleSubmit("abc", "abc"))
	errutil.AssertErrorCode(t, auth.CheckDoubleSubmit("abc", "abd"), "CSRF_MISMATCH")
	errutil.AssertErrorCode(t, auth.CheckDoubleSubmit("", "abc"), "CSRF_MISSING")
	errutil.AssertErrorCode(t, auth.CheckDoubleSubmit("abc", ""), "CSRF_MISSING")
}

func TestCheckCSRFBinding(t *testing.T) {
	token, hash, err := auth.GenerateCSRFToken()
	require.NoError(t, err)

	require.NoError(t, auth.CheckCSRFBinding(token, hash))

	other, _, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	errutil.AssertErrorCode(t, auth.CheckCSRFBinding(other, hash), "CSRF_MISMATCH")
	errutil.AssertErrorCode(t, auth.CheckCSRFBinding(token, ""), "CSRF_MISMATCH")
	errutil.AssertErrorCode(t, auth.CheckCSRFBinding("", hash), "CSRF_MISSING")
}
