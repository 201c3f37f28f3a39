// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the portal a user belongs to.
type Role string

// Known roles.
const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleTherapist, RoleAdmin:
		return true
	}
	return false
}

// MFAMethod is the second factor an account is enrolled in.
type MFAMethod string

// Supported MFA methods.
const (
	MFANone MFAMethod = "none"
	MFATOTP MFAMethod = "totp"
	MFAHOTP MFAMethod = "hotp"
)

// Valid reports whether m is a known method.
func (m MFAMethod) Valid() bool {
	switch m {
	case MFANone, MFATOTP, MFAHOTP:
		return true
	}
	return false
}

// Name length constraints.
const (
	MinNameLength = 1
	MaxNameLength = 100
)

var e164Regex = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// MFAState is the second-factor enrollment of a user.
type MFAState struct {
	Method MFAMethod
	Secret string
	// Counter is the next HOTP counter.
	Counter uint64
	// LastStep is the last accepted TOTP time step.
	LastStep   int64
	Enabled    bool
	EnrolledAt *time.Time
}

// Pending reports whether a secret was issued but never confirmed.
func (m MFAState) Pending() bool {
	return !m.Enabled && m.Secret != "" && m.Method != MFANone
}

// User is an account shared by the patient, therapist and admin portals.
type User struct {
	ID             ulid.ULID
	Email          *string
	Phone          *string
	Name           string
	Role           Role
	PasswordHash   string
	EmailVerified  bool
	PhoneVerified  bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastFailedAt   *time.Time
	MFA            MFAState
	TokenVersion   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

// NewUser validates identity fields and returns a user with a fresh ID.
// passwordHash may be empty for OTP-only patients.
func NewUser(email, phone, name string, role Role, passwordHash string) (*User, error) {
	u := &User{Role: role, PasswordHash: passwordHash}

	if email == "" && phone == "" {
		return nil, oops.Code("AUTH_IDENTITY_REQUIRED").Errorf("email or phone is required")
	}
	if email != "" {
		normalized, err := NormalizeEmail(email)
		if err != nil {
			return nil, err
		}
		u.Email = &normalized
	}
	if phone != "" {
		normalized, err := NormalizePhone(phone)
		if err != nil {
			return nil, err
		}
		u.Phone = &normalized
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	u.Name = strings.TrimSpace(name)
	if !role.Valid() {
		return nil, oops.Code("AUTH_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}

	now := time.Now()
	u.ID = ulid.Make()
	u.MFA.Method = MFANone
	u.CreatedAt = now
	u.UpdatedAt = now
	return u, nil
}

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || !strings.Contains(trimmed[strings.LastIndex(trimmed, "@")+1:], ".") {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("invalid email address")
	}
	return trimmed, nil
}

// NormalizePhone strips spaces, dashes and parentheses, prefixes bare
// 10-digit Indian numbers with +91 and requires E.164.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	switch {
	case len(cleaned) == 10 && !strings.HasPrefix(cleaned, "+"):
		cleaned = "+91" + cleaned
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "91"):
		cleaned = "+" + cleaned
	case strings.HasPrefix(cleaned, "00"):
		cleaned = "+" + cleaned[2:]
	}

	if !e164Regex.MatchString(cleaned) {
		return "", oops.Code("AUTH_INVALID_PHONE").Errorf("phone number must be E.164")
	}
	return cleaned, nil
}

// ValidateName checks the display name length in characters.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < MinNameLength || n > MaxNameLength {
		return oops.Code("AUTH_INVALID_NAME").
			With("min", MinNameLength).
			With("max", MaxNameLength).
			Errorf("name must be %d to %d characters", MinNameLength, MaxNameLength)
	}
	return nil
}

// Identifier returns the email if set, otherwise the phone.
func (u *User) Identifier() string {
	if u.Email != nil {
		return *u.Email
	}
	if u.Phone != nil {
		return *u.Phone
	}
	return ""
}

// IsLocked reports whether the account is locked at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// FailureState is the lockout bookkeeping after a failed credential check.
type FailureState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	LastFailedAt   *time.Time
	// Locked reports whether this failure started the lockout.
	Locked bool
}

// ApplyFailure copies a recorded failure onto u.
func (u *User) ApplyFailure(st FailureState) {
	u.FailedAttempts = st.FailedAttempts
	u.LockedUntil = st.LockedUntil
	u.LastFailedAt = st.LastFailedAt
}

// RecordSuccess clears the failure counter and any lockout.
func (u *User) RecordSuccess(now time.Time) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.LastFailedAt = nil
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// RequiresMFA is true for admins, who must always use a second factor, and
// for anyone who enabled one.
func (u *User) RequiresMFA() bool {
	return u.Role == RoleAdmin || u.MFA.Enabled
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Duplicate email or phone returns AUTH_IDENTITY_TAKEN.
	Create(ctx context.Context, user *User) error

	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)

	GetByPhone(ctx context.Context, phone string) (*User, error)

	// Update writes profile and verification fields. Lockout, password and
	// MFA columns have their own conditional writers.
	Update(ctx context.Context, user *User) error

	// RecordFailure counts a failed credential check in one statement and
	// locks the account once policy.Threshold is reached. Failures during an
	// active lockout change nothing; a lapsed lockout restarts the count.
	RecordFailure(ctx context.Context, id ulid.ULID, at time.Time, policy LockoutPolicy) (FailureState, error)

	// RecordLoginSuccess clears failures and any lockout and stamps last_login_at.
	RecordLoginSuccess(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePassword sets the hash, clears any lockout and bumps
	// token_version, invalidating outstanding access tokens. It returns the
	// new token version.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) (int, error)

	// UpgradePasswordHash replaces the hash only while it still equals
	// oldHash. It reports whether the row changed.
	UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error)

	// UpdateMFA writes the MFA columns only.
	UpdateMFA(ctx context.Context, id ulid.ULID, mfa MFAState) error

	// AdvanceMFA stores next only while the stored counter and last step
	// still equal prev's. It reports whether the row changed; false means
	// the code was spent by a concurrent request.
	AdvanceMFA(ctx context.Context, id ulid.ULID, prev, next MFAState) (bool, error)

	// BumpTokenVersion invalidates outstanding access tokens.
	BumpTokenVersion(ctx context.Context, id ulid.ULID) (int, error)

	Delete(ctx context.Context, id ulid.ULID) error
}
