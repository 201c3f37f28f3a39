// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/notify"
)

// OTP defaults.
const (
	DefaultOTPLength      = 6
	DefaultOTPTTL         = 5 * time.Minute
	DefaultOTPMaxAttempts = 5
	DefaultOTPCooldown    = 60 * time.Second
)

// OTPPurpose is what a passcode may be used for.
type OTPPurpose string

// Supported purposes.
const (
	OTPPurposeLogin  OTPPurpose = "login"
	OTPPurposeVerify OTPPurpose = "verify"
)

// Valid reports whether p is a known purpose.
func (p OTPPurpose) Valid() bool {
	return p == OTPPurposeLogin || p == OTPPurposeVerify
}

// OTPChallenge is a passcode sent to a phone or email address.
type OTPChallenge struct {
	ID          ulid.ULID
	Destination string
	Channel     notify.Channel
	Purpose     OTPPurpose
	CodeHash    string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	CreatedAt   time.Time
}

// NewOTPChallenge builds a challenge for destination and stores the keyed
// hash of code. The destination must already be normalized.
func NewOTPChallenge(destination string, channel notify.Channel, purpose OTPPurpose, code string, pepper []byte, maxAttempts int, ttl time.Duration, now time.Time) (*OTPChallenge, error) {
	if destination == "" {
		return nil, oops.Code("OTP_INVALID_DESTINATION").Errorf("destination is required")
	}
	if !purpose.Valid() {
		return nil, oops.Code("OTP_INVALID_PURPOSE").With("purpose", string(purpose)).Errorf("unknown purpose")
	}
	if code == "" || maxAttempts <= 0 || ttl <= 0 {
		return nil, oops.Code("OTP_INVALID").Errorf("code, attempts and ttl are required")
	}
	id := ulid.Make()
	return &OTPChallenge{
		ID:          id,
		Destination: destination,
		Channel:     channel,
		Purpose:     purpose,
		CodeHash:    HashOTPCode(pepper, id, code),
		MaxAttempts: maxAttempts,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}, nil
}

// IsExpiredAt reports whether the challenge is past its TTL at t.
func (c *OTPChallenge) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// Matches compares code against the stored hash in constant time.
func (c *OTPChallenge) Matches(pepper []byte, code string) bool {
	expected, err := hex.DecodeString(c.CodeHash)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, pepper)
	mac.Write(c.ID[:])
	mac.Write([]byte(code))
	return hmac.Equal(mac.Sum(nil), expected)
}

// HashOTPCode is HMAC-SHA256(pepper, id || code), hex encoded.
func HashOTPCode(pepper []byte, id ulid.ULID, code string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write(id[:])
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateOTPCode returns length uniformly random decimal digits.
func GenerateOTPCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for range length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", oops.Code("OTP_GENERATE_FAILED").Wrap(err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// ResolveDestination normalizes an email or phone and picks the channel.
func ResolveDestination(destination string) (string, notify.Channel, error) {
	if strings.Contains(destination, "@") {
		email, err := NormalizeEmail(destination)
		if err != nil {
			return "", "", err
		}
		return email, notify.ChannelEmail, nil
	}
	phone, err := NormalizePhone(destination)
	if err != nil {
		return "", "", err
	}
	return phone, notify.ChannelSMS, nil
}

// OTPRepository manages OTP challenge persistence.
type OTPRepository interface {
	Create(ctx context.Context, challenge *OTPChallenge) error

	GetByID(ctx context.Context, id ulid.ULID) (*OTPChallenge, error)

	// Latest returns the newest challenge for destination and purpose.
	Latest(ctx context.Context, destination string, purpose OTPPurpose) (*OTPChallenge, error)

	// InvalidateOpen consumes every open challenge for destination and purpose.
	InvalidateOpen(ctx context.Context, destination string, purpose OTPPurpose, at time.Time) (int64, error)

	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error)

	// Delete removes a challenge, used when its code could not be delivered.
	Delete(ctx context.Context, id ulid.ULID) error

	// ConsumeIfOpen sets consumed_at only if it is still NULL and reports
	// whether this call consumed the challenge.
	ConsumeIfOpen(ctx context.Context, id ulid.ULID, at time.Time) (bool, error)

	// DeleteExpired removes challenges that expired or were consumed before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
