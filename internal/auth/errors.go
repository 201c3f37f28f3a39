// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// errInvalidCredentials is shared by every password mismatch so an unknown
// identifier and a wrong password look the same to the caller.
func errInvalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid credentials")
}
