// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(t, ok, "want a coded error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode fails the test unless err carries the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	asOops(t, err)
	assert.Equalf(t, code, CodeOf(err), "error: %v", err)
}

// AssertErrorContext fails the test unless err carries key=value in its
// context map.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	fields := asOops(t, err).Context()
	if assert.Containsf(t, fields, key, "context keys: %v", fields) {
		assert.Equal(t, value, fields[key])
	}
}
