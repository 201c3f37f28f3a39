// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package config

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinOTPPepperLength is the minimum size of an explicitly configured pepper.
const MinOTPPepperLength = 32

const otpPepperInfo = "manas360/otp-pepper/v1"

// OTPPepper returns the key used to hash one-time passcodes. An unset
// auth.otp.pepper is derived from the JWT secret with HKDF-SHA256 so the
// signing key itself never hashes codes.
func (c AuthConfig) OTPPepper() []byte {
	if c.OTP.Pepper != "" {
		return []byte(c.OTP.Pepper)
	}
	out := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(c.JWT.Secret), nil, []byte(otpPepperInfo))
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF-SHA256 yields up to 255*32 bytes; 32 cannot fail.
		panic(err)
	}
	return out
}
