// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
	"github.com/samber/oops"
)

// MFA defaults.
const (
	DefaultMFAIssuer   = "MANAS360"
	TOTPPeriod         = 30
	DefaultTOTPSkew    = 1
	DefaultHOTPWindow  = 10
	RecoveryCodeCount  = 10
	recoveryHalfLength = 5
)

// recoveryAlphabet omits 0/o and 1/l.
const recoveryAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// MFAPolicy configures second-factor verification.
type MFAPolicy struct {
	Issuer     string
	TOTPSkew   uint
	HOTPWindow int
}

// DefaultMFAPolicy returns issuer MANAS360, TOTP skew 1 and HOTP window 10.
func DefaultMFAPolicy() MFAPolicy {
	return MFAPolicy{Issuer: DefaultMFAIssuer, TOTPSkew: DefaultTOTPSkew, HOTPWindow: DefaultHOTPWindow}
}

// Enrollment is returned when an MFA secret is issued.
type Enrollment struct {
	Method MFAMethod
	Secret string
	URL    string
}

// RecoveryCode is a single-use fallback for a lost authenticator.
type RecoveryCode struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RecoveryCodeRepository manages recovery code persistence.
type RecoveryCodeRepository interface {
	// Replace deletes the user's codes and stores codes.
	Replace(ctx context.Context, userID ulid.ULID, codes []*RecoveryCode) error

	ListUnused(ctx context.Context, userID ulid.ULID) ([]*RecoveryCode, error)

	// MarkUsed sets used_at if still NULL and reports whether it did.
	MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) (bool, error)
}

var codeOpts = struct {
	digits otp.Digits
	algo   otp.Algorithm
}{otp.DigitsSix, otp.AlgorithmSHA1}

// GenerateMFASecret issues a new TOTP or HOTP key for account.
func (p MFAPolicy) GenerateMFASecret(method MFAMethod, account string) (*Enrollment, error) {
	var (
		key *otp.Key
		err error
	)
	switch method {
	case MFATOTP:
		key, err = totp.Generate(totp.GenerateOpts{
			Issuer:      p.Issuer,
			AccountName: account,
			Period:      TOTPPeriod,
			Digits:      codeOpts.digits,
			Algorithm:   codeOpts.algo,
		})
	case MFAHOTP:
		key, err = hotp.Generate(hotp.GenerateOpts{
			Issuer:      p.Issuer,
			AccountName: account,
			Digits:      codeOpts.digits,
			Algorithm:   codeOpts.algo,
		})
	default:
		return nil, oops.Code("MFA_INVALID_METHOD").With("method", string(method)).Errorf("unsupported mfa method")
	}
	if err != nil {
		return nil, oops.Code("MFA_GENERATE_FAILED").Wrap(err)
	}
	return &Enrollment{Method: method, Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyOTPCode checks a TOTP or HOTP code against state at now. On success
// it returns the state advanced past the accepted code: LastStep for TOTP so
// the same step cannot be replayed, Counter for HOTP.
func (p MFAPolicy) VerifyOTPCode(state MFAState, code string, now time.Time) (MFAState, bool) {
	code = strings.TrimSpace(code)
	if len(code) != int(codeOpts.digits) || state.Secret == "" {
		return state, false
	}

	switch state.Method {
	case MFATOTP:
		current := now.Unix() / TOTPPeriod
		skew := int64(p.TOTPSkew)
		for step := current - skew; step <= current+skew; step++ {
			if step <= state.LastStep {
				continue
			}
			expected, err := totp.GenerateCodeCustom(state.Secret, time.Unix(step*TOTPPeriod, 0), totp.ValidateOpts{
				Period:    TOTPPeriod,
				Digits:    codeOpts.digits,
				Algorithm: codeOpts.algo,
			})
			if err != nil {
				return state, false
			}
			if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
				state.LastStep = step
				return state, true
			}
		}
	case MFAHOTP:
		for c := state.Counter; c <= state.Counter+uint64(max(p.HOTPWindow, 0)); c++ {
			expected, err := hotp.GenerateCodeCustom(state.Secret, c, hotp.ValidateOpts{
				Digits:    codeOpts.digits,
				Algorithm: codeOpts.algo,
			})
			if err != nil {
				return state, false
			}
			if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
				state.Counter = c + 1
				return state, true
			}
		}
	}
	return state, false
}

// GenerateRecoveryCodes returns n plaintext codes formatted xxxxx-xxxxx.
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	alphabet := big.NewInt(int64(len(recoveryAlphabet)))
	for range n {
		var b strings.Builder
		for i := range 2 * recoveryHalfLength {
			if i == recoveryHalfLength {
				b.WriteByte('-')
			}
			idx, err := rand.Int(rand.Reader, alphabet)
			if err != nil {
				return nil, oops.Code("MFA_GENERATE_FAILED").Wrap(err)
			}
			b.WriteByte(recoveryAlphabet[idx.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// IsRecoveryCodeFormat reports whether code looks like a recovery code
// rather than a six-digit passcode.
func IsRecoveryCodeFormat(code string) bool {
	code = NormalizeRecoveryCode(code)
	if len(code) != 2*recoveryHalfLength+1 || code[recoveryHalfLength] != '-' {
		return false
	}
	for i := 0; i < len(code); i++ {
		if i == recoveryHalfLength {
			continue
		}
		if !strings.ContainsRune(recoveryAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// NormalizeRecoveryCode lower-cases and trims user input.
func NormalizeRecoveryCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
