// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess     = "access"
	TokenTypeMFAPending = "mfa_pending"
)

// TokenConfig configures the JWT issuer.
type TokenConfig struct {
	Secret      []byte
	Issuer      string
	Audience    string
	AccessTTL   time.Duration
	MFATokenTTL time.Duration
	Leeway      time.Duration
}

// Claims are the JWT claims for access and MFA-pending tokens.
type Claims struct {
	Role      Role   `json:"role"`
	SessionID string `json:"sid,omitempty"`
	Version   int    `json:"ver"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a ULID.
func (c *Claims) UserID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").Wrap(err)
	}
	return id, nil
}

// TokenIssuer signs and validates HS256 tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("jwt secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.MFATokenTTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token TTLs must be positive")
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.cfg.AccessTTL }

// IssueAccess signs an access token for user bound to the session family.
func (t *TokenIssuer) IssueAccess(user *User, sessionID ulid.ULID) (string, time.Time, error) {
	return t.issue(user, sessionID.String(), TokenTypeAccess, t.cfg.AccessTTL)
}

// IssueMFAPending signs the short-lived token that proves the password step
// of an MFA login succeeded.
func (t *TokenIssuer) IssueMFAPending(user *User) (string, time.Time, error) {
	return t.issue(user, "", TokenTypeMFAPending, t.cfg.MFATokenTTL)
}

func (t *TokenIssuer) issue(user *User, sid, typ string, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)
	claims := &Claims{
		Role:      user.Role,
		SessionID: sid,
		Version:   user.TokenVersion,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   user.ID.String(),
			Issuer:    t.cfg.Issuer,
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.Secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, exp, nil
}

// ParseAccess validates an access token.
func (t *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, TokenTypeAccess)
}

// ParseMFAPending validates an MFA-pending token.
func (t *TokenIssuer) ParseMFAPending(token string) (*Claims, error) {
	return t.parse(token, TokenTypeMFAPending)
}

func (t *TokenIssuer) parse(token, typ string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code("TOKEN_MISSING").Errorf("token is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithLeeway(t.cfg.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Errorf("token has expired")
		}
		return nil, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Errorf("invalid token")
	}
	if claims.Type != typ {
		return nil, oops.Code("TOKEN_INVALID").
			With("expected_type", typ).
			With("type", claims.Type).
			Errorf("invalid token type")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
