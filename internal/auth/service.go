// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/notify"
)

// dummyPasswordHash is verified when no account matches so unknown
// identifiers cost the same as wrong passwords.
//
//nolint:gosec // G101: intentionally fake hash, never matches
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// OTPPolicy configures one-time passcodes.
type OTPPolicy struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// Cooldown between sends to one destination; zero disables it.
	Cooldown time.Duration
	Pepper   []byte
	// AutoRegister creates a patient account on the first verified login
	// OTP for an unknown destination.
	AutoRegister bool
}

// ServiceConfig tunes the Service. Zero fields take defaults.
type ServiceConfig struct {
	RefreshTTL  time.Duration
	RememberTTL time.Duration
	// ReuseGrace tolerates a second presentation of a just-rotated token
	// (concurrent tabs) by answering TOKEN_ROTATED instead of revoking.
	ReuseGrace time.Duration
	Lockout    LockoutPolicy
	OTP        OTPPolicy
	MFA        MFAPolicy
}

func (c *ServiceConfig) applyDefaults() {
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = RefreshTokenExpiry
	}
	if c.RememberTTL < c.RefreshTTL {
		c.RememberTTL = max(RememberMeExpiry, c.RefreshTTL)
	}
	if c.Lockout.Threshold <= 0 || c.Lockout.Duration <= 0 {
		c.Lockout = DefaultLockoutPolicy()
	}
	if c.OTP.Length <= 0 {
		c.OTP.Length = DefaultOTPLength
	}
	if c.OTP.TTL <= 0 {
		c.OTP.TTL = DefaultOTPTTL
	}
	if c.OTP.MaxAttempts <= 0 {
		c.OTP.MaxAttempts = DefaultOTPMaxAttempts
	}
	if c.OTP.Cooldown < 0 {
		c.OTP.Cooldown = DefaultOTPCooldown
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = DefaultMFAIssuer
	}
	if c.MFA.HOTPWindow <= 0 {
		c.MFA.HOTPWindow = DefaultHOTPWindow
	}
}

// Deps are the collaborators of a Service. Metrics, Logger and Now are optional.
type Deps struct {
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
	OTPs          OTPRepository
	RecoveryCodes RecoveryCodeRepository
	Hasher        PasswordHasher
	Tokens        *TokenIssuer
	Sender        notify.Sender

	Metrics Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service runs the login, session and MFA flows.
type Service struct {
	users    UserRepository
	refresh  RefreshTokenRepository
	otps     OTPRepository
	recovery RecoveryCodeRepository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	sender   notify.Sender
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
	cfg      ServiceConfig
}

// NewService validates deps and returns a Service.
func NewService(deps Deps, cfg ServiceConfig) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	case deps.RefreshTokens == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("refresh token repository is required")
	case deps.OTPs == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("otp repository is required")
	case deps.RecoveryCodes == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("recovery code repository is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	case deps.Sender == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("notification sender is required")
	}
	if len(cfg.OTP.Pepper) == 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("otp pepper is required")
	}
	cfg.applyDefaults()

	s := &Service{
		users:    deps.Users,
		refresh:  deps.RefreshTokens,
		otps:     deps.OTPs,
		recovery: deps.RecoveryCodes,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		sender:   deps.Sender,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		cfg:      cfg,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ClientMeta describes the device a request came from.
type ClientMeta struct {
	UserAgent  string
	IPAddress  string
	RememberMe bool
}

// Tokens is the result of a completed login or refresh.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
	SessionID        ulid.ULID
	User             *User
	// RecoveryCodes is set once, when a login confirmed a pending MFA enrollment.
	RecoveryCodes []string
}

// MFAChallenge is returned when the first factor succeeded and a second is required.
type MFAChallenge struct {
	Token     string
	ExpiresAt time.Time
	Method    MFAMethod
	// EnrollmentPending means the code will also confirm the enrollment.
	EnrollmentPending bool
}

// LoginResult holds exactly one of Tokens or MFA.
type LoginResult struct {
	Tokens *Tokens
	MFA    *MFAChallenge
}

// RegisterInput is a self sign-up request.
type RegisterInput struct {
	Email    string
	Phone    string
	Name     string
	Password string
	Role     Role
}

// Register creates a patient or therapist account and logs it in. Admins are
// created out of band.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta ClientMeta) (*Tokens, error) {
	if in.Role == "" {
		in.Role = RolePatient
	}
	if in.Role != RolePatient && in.Role != RoleTherapist {
		return nil, oops.Code("AUTH_ROLE_NOT_ALLOWED").With("role", string(in.Role)).Errorf("role cannot self-register")
	}
	if err := ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	user, err := NewUser(in.Email, in.Phone, in.Name, in.Role, hash)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", string(user.Role))
	s.recordSuccess(ctx, user, s.now())
	return s.issueSession(ctx, user, meta, ulid.ULID{}, nil, time.Time{})
}

// CreateAdmin creates an admin account and issues its pending MFA secret.
// The enrollment is confirmed by the first successful MFA login.
func (s *Service) CreateAdmin(ctx context.Context, email, phone, name, password string, method MFAMethod) (*User, *Enrollment, error) {
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	user, err := NewUser(email, phone, name, RoleAdmin, hash)
	if err != nil {
		return nil, nil, err
	}
	enrollment, err := s.cfg.MFA.GenerateMFASecret(method, user.Identifier())
	if err != nil {
		return nil, nil, err
	}
	user.MFA = MFAState{Method: method, Secret: enrollment.Secret}
	user.EmailVerified = user.Email != nil
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create admin").Wrap(err)
	}
	s.logger.InfoContext(ctx, "admin created", "user_id", user.ID.String(), "mfa_method", string(method))
	return user, enrollment, nil
}

// lookupIdentifier finds a user by email or phone. Malformed identifiers
// are reported as ErrNotFound.
func (s *Service) lookupIdentifier(ctx context.Context, identifier string) (*User, error) {
	if strings.Contains(identifier, "@") {
		email, err := NormalizeEmail(identifier)
		if err != nil {
			return nil, ErrNotFound
		}
		return s.users.GetByEmail(ctx, email)
	}
	phone, err := NormalizePhone(identifier)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.users.GetByPhone(ctx, phone)
}

// PasswordLogin verifies an email or phone and password. Admins and users
// with MFA get an MFAChallenge instead of tokens.
func (s *Service) PasswordLogin(ctx context.Context, identifier, password string, meta ClientMeta) (*LoginResult, error) {
	user, lookupErr := s.lookupIdentifier(ctx, identifier)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		s.metrics.LoginAttempt(MethodPassword, OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "lookup user").Wrap(lookupErr)
	}

	target := dummyPasswordHash
	exists := lookupErr == nil && user.PasswordHash != ""
	if exists {
		target = user.PasswordHash
	}

	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if !exists {
			s.metrics.LoginAttempt(MethodPassword, OutcomeInvalid)
			return nil, errInvalidCredentials()
		}
		s.metrics.LoginAttempt(MethodPassword, OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(verifyErr)
	}

	if !exists {
		s.metrics.LoginAttempt(MethodPassword, OutcomeInvalid)
		return nil, errInvalidCredentials()
	}

	// Lockout and throttle are evaluated only after the hash work so timing
	// stays flat. A throttled attempt is rejected without being counted.
	now := s.now()
	if err := s.checkLockout(user, now); err != nil {
		s.metrics.LoginAttempt(MethodPassword, OutcomeLocked)
		return nil, err
	}
	if !valid {
		if err := s.recordFailure(ctx, user, now); err != nil {
			return nil, err
		}
		s.metrics.LoginAttempt(MethodPassword, OutcomeInvalid)
		return nil, errInvalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	if user.RequiresMFA() {
		challenge, err := s.mfaChallenge(user)
		if err != nil {
			return nil, err
		}
		s.metrics.LoginAttempt(MethodPassword, OutcomeMFARequired)
		return &LoginResult{MFA: challenge}, nil
	}

	s.recordSuccess(ctx, user, now)
	tokens, err := s.issueSession(ctx, user, meta, ulid.ULID{}, nil, time.Time{})
	if err != nil {
		s.metrics.LoginAttempt(MethodPassword, OutcomeError)
		return nil, err
	}
	s.metrics.LoginAttempt(MethodPassword, OutcomeSuccess)
	return &LoginResult{Tokens: tokens}, nil
}

func (s *Service) mfaChallenge(user *User) (*MFAChallenge, error) {
	if user.MFA.Secret == "" || user.MFA.Method == MFANone {
		return nil, oops.Code("MFA_ENROLLMENT_REQUIRED").
			With("user_id", user.ID.String()).
			Errorf("second factor must be enrolled before login")
	}
	token, exp, err := s.tokens.IssueMFAPending(user)
	if err != nil {
		return nil, err
	}
	return &MFAChallenge{
		Token:             token,
		ExpiresAt:         exp,
		Method:            user.MFA.Method,
		EnrollmentPending: user.MFA.Pending(),
	}, nil
}

// checkLockout returns AUTH_ACCOUNT_LOCKED while a lockout is active and
// AUTH_TOO_MANY_ATTEMPTS inside the progressive delay after a failure. Both
// carry retry_after.
func (s *Service) checkLockout(user *User, now time.Time) error {
	st := s.cfg.Lockout.Check(user.FailedAttempts, user.LockedUntil, user.LastFailedAt, now)
	switch {
	case st.Locked:
		return errLocked(st.RetryAfter)
	case st.Throttled:
		return oops.Code("AUTH_TOO_MANY_ATTEMPTS").
			With("retry_after", st.RetryAfter).
			Errorf("too many attempts, retry later")
	}
	return nil
}

func errLocked(retryAfter time.Duration) error {
	return oops.Code("AUTH_ACCOUNT_LOCKED").
		With("retry_after", retryAfter.Round(time.Second)).
		Errorf("account is temporarily locked")
}

// recordFailure counts a failed factor and returns AUTH_ACCOUNT_LOCKED when
// the account is (or just became) locked.
func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) error {
	st, err := s.users.RecordFailure(ctx, user.ID, now, s.cfg.Lockout)
	if err != nil {
		return oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "record failure").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.ApplyFailure(st)
	if st.Locked {
		s.metrics.Lockout()
		s.logger.WarnContext(ctx, "account locked",
			"user_id", user.ID.String(),
			"failed_attempts", user.FailedAttempts,
			"locked_until", user.LockedUntil)
	}
	if user.IsLocked(now) {
		return errLocked(user.LockedUntil.Sub(now))
	}
	return nil
}

func (s *Service) recordSuccess(ctx context.Context, user *User, now time.Time) {
	user.RecordSuccess(now)
	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "recording login success failed", "user_id", user.ID.String(), "error", err)
	}
}

// upgradeHash rehashes password with current parameters unless another
// request already changed the stored hash.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	ok, err := s.users.UpgradePasswordHash(ctx, user.ID, user.PasswordHash, upgraded)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID.String(), "error", err)
		return
	}
	if ok {
		user.PasswordHash = upgraded
	}
}

func (s *Service) bestEffortUpdate(ctx context.Context, user *User, op string) {
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "user update failed", "operation", op, "user_id", user.ID.String(), "error", err)
	}
}

// issueSession mints an access token and a refresh token. A zero familyID
// starts a new family capped by the remember-me choice; otherwise the child
// inherits familyExpiry. Each row lives for the TTL of its remember-me class,
// never past the family cap.
func (s *Service) issueSession(ctx context.Context, user *User, meta ClientMeta, familyID ulid.ULID, parentID *ulid.ULID, familyExpiry time.Time) (*Tokens, error) {
	now := s.now()
	ttl := s.cfg.RefreshTTL
	if meta.RememberMe {
		ttl = s.cfg.RememberTTL
	}
	if familyExpiry.IsZero() {
		familyExpiry = now.Add(ttl)
	}
	expiresAt := now.Add(ttl)
	if expiresAt.After(familyExpiry) {
		expiresAt = familyExpiry
	}

	refreshToken, refreshHash, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	csrfToken, csrfHash, err := GenerateCSRFToken()
	if err != nil {
		return nil, err
	}
	row, err := NewRefreshToken(user.ID, familyID, parentID, refreshHash, csrfHash,
		meta.UserAgent, meta.IPAddress, expiresAt, familyExpiry)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").Wrap(err)
	}
	row.CreatedAt = now
	if err := s.refresh.Create(ctx, row); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").With("operation", "persist refresh token").Wrap(err)
	}

	access, accessExp, err := s.tokens.IssueAccess(user, row.FamilyID)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: row.ExpiresAt,
		CSRFToken:        csrfToken,
		SessionID:        row.FamilyID,
		User:             user,
	}, nil
}
