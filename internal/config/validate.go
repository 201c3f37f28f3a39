// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package config

import (
	"net/netip"
	"strings"

	"github.com/samber/oops"
)

// MinJWTSecretLength is the minimum HMAC key size in bytes.
const MinJWTSecretLength = 32

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if c.Database.URL == "" {
		return invalid.Errorf("database.url is required (or set %s)", DatabaseURLEnv)
	}
	if len(c.Auth.JWT.Secret) < MinJWTSecretLength {
		return invalid.With("min", MinJWTSecretLength).
			Errorf("auth.jwt.secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.Auth.JWT.AccessTTL <= 0 {
		return invalid.Errorf("auth.jwt.access_ttl must be positive")
	}
	if c.Auth.JWT.AccessTTL >= c.Auth.Refresh.TTL {
		return invalid.Errorf("auth.jwt.access_ttl must be shorter than auth.refresh.ttl")
	}
	if c.Auth.Refresh.RememberTTL < c.Auth.Refresh.TTL {
		return invalid.Errorf("auth.refresh.remember_ttl must not be shorter than auth.refresh.ttl")
	}
	if c.Auth.OTP.Length < 4 || c.Auth.OTP.Length > 10 {
		return invalid.With("length", c.Auth.OTP.Length).Errorf("auth.otp.length must be between 4 and 10")
	}
	if c.Auth.OTP.MaxAttempts <= 0 {
		return invalid.Errorf("auth.otp.max_attempts must be positive")
	}
	if p := c.Auth.OTP.Pepper; p != "" {
		if len(p) < MinOTPPepperLength {
			return invalid.With("min", MinOTPPepperLength).
				Errorf("auth.otp.pepper must be at least %d bytes", MinOTPPepperLength)
		}
		if p == c.Auth.JWT.Secret {
			return invalid.Errorf("auth.otp.pepper must differ from auth.jwt.secret")
		}
	}
	if c.Auth.Lockout.Threshold <= 0 || c.Auth.Lockout.Duration <= 0 {
		return invalid.Errorf("auth.lockout.threshold and auth.lockout.duration must be positive")
	}
	if c.Auth.MFA.HOTPWindow < 0 {
		return invalid.Errorf("auth.mfa.hotp_window must not be negative")
	}
	switch strings.ToLower(c.Auth.Cookies.SameSite) {
	case "strict", "lax", "none":
	default:
		return invalid.With("same_site", c.Auth.Cookies.SameSite).
			Errorf("auth.cookies.same_site must be strict, lax or none")
	}
	if strings.EqualFold(c.Auth.Cookies.SameSite, "none") && !c.Auth.Cookies.Secure {
		return invalid.Errorf("auth.cookies.same_site=none requires auth.cookies.secure")
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			return invalid.With("proxy", p).
				Errorf("server.trusted_proxies entries must be IP addresses or CIDR prefixes")
		}
	}
	if c.Webhook.Enabled && len(c.Webhook.Secrets) == 0 {
		return invalid.Errorf("webhook.secrets is required when webhook.enabled is set")
	}
	switch c.Notify.Mode {
	case "log":
	case "http":
		if c.Notify.URL == "" {
			return invalid.Errorf("notify.url is required when notify.mode is http")
		}
	default:
		return invalid.With("mode", c.Notify.Mode).Errorf("notify.mode must be log or http")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Maintenance.Interval <= 0 {
		return invalid.Errorf("maintenance.interval must be positive")
	}
	return nil
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
