// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package config loads service configuration from defaults, a YAML file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"net/http"
	"strings"
	"time"
)

// Config is the root configuration for the manas360 service.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Auth        AuthConfig        `koanf:"auth"`
	Webhook     WebhookConfig     `koanf:"webhook"`
	Notify      NotifyConfig      `koanf:"notify"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Log         LogConfig         `koanf:"log"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// ServerConfig configures the public HTTP API listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`

	// RateLimitRequests per RateLimitWindow per client IP, across the API.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// AuthRateLimitRequests applies to login, OTP and reset endpoints.
	AuthRateLimitRequests int `koanf:"auth_rate_limit_requests"`

	// TrustedProxies lists the load balancers allowed to set the client IP
	// through X-Forwarded-For. Requests from anywhere else are keyed on the
	// socket peer.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// AuthConfig groups the authentication subsystem settings.
type AuthConfig struct {
	JWT     JWTConfig     `koanf:"jwt"`
	Refresh RefreshConfig `koanf:"refresh"`
	OTP     OTPConfig     `koanf:"otp"`
	Lockout LockoutConfig `koanf:"lockout"`
	MFA     MFAConfig     `koanf:"mfa"`
	Cookies CookieConfig  `koanf:"cookies"`
	Reset   ResetConfig   `koanf:"reset"`
}

// JWTConfig configures access and MFA-pending tokens.
type JWTConfig struct {
	Secret      string        `koanf:"secret"`
	Issuer      string        `koanf:"issuer"`
	Audience    string        `koanf:"audience"`
	AccessTTL   time.Duration `koanf:"access_ttl"`
	MFATokenTTL time.Duration `koanf:"mfa_token_ttl"`
	Leeway      time.Duration `koanf:"leeway"`
}

// RefreshConfig configures refresh-token families.
type RefreshConfig struct {
	TTL         time.Duration `koanf:"ttl"`
	RememberTTL time.Duration `koanf:"remember_ttl"`

	// ReuseGrace tolerates a second presentation of a just-rotated token.
	ReuseGrace time.Duration `koanf:"reuse_grace"`

	// Retention keeps retired rows around for reuse detection before cleanup.
	Retention time.Duration `koanf:"retention"`
}

// OTPConfig configures one-time passcodes.
type OTPConfig struct {
	Length       int           `koanf:"length"`
	TTL          time.Duration `koanf:"ttl"`
	MaxAttempts  int           `koanf:"max_attempts"`
	Cooldown     time.Duration `koanf:"cooldown"`
	Pepper       string        `koanf:"pepper"`
	AutoRegister bool          `koanf:"auto_register"`
}

// LockoutConfig configures failed-attempt lockout.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// MFAConfig configures TOTP/HOTP.
type MFAConfig struct {
	Issuer     string `koanf:"issuer"`
	TOTPSkew   uint   `koanf:"totp_skew"`
	HOTPWindow int    `koanf:"hotp_window"`
}

// CookieConfig configures the auth cookies.
type CookieConfig struct {
	Secure   bool   `koanf:"secure"`
	SameSite string `koanf:"same_site"`
	Domain   string `koanf:"domain"`
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	TTL time.Duration `koanf:"ttl"`
	// LinkURL is the front-end page that receives ?token=.
	LinkURL string `koanf:"link_url"`
}

// WebhookConfig configures payment callback verification.
type WebhookConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Tolerance        time.Duration `koanf:"tolerance"`
	RequireTimestamp bool          `koanf:"require_timestamp"`

	// Secrets are tried in order; list the new secret first while rotating.
	Secrets []string `koanf:"secrets"`
}

// NotifyConfig configures OTP delivery.
type NotifyConfig struct {
	// Mode is "log" or "http".
	Mode string `koanf:"mode"`

	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MaintenanceConfig configures the background cleanup loop.
type MaintenanceConfig struct {
	Interval         time.Duration `koanf:"interval"`
	WebhookRetention time.Duration `koanf:"webhook_retention"`
	OTPRetention     time.Duration `koanf:"otp_retention"`
	CleanupOnStartup bool          `koanf:"cleanup_on_startup"`
}

// Default returns a Config populated with production defaults. Secrets and the
// database URL have no defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                  ":8080",
			ReadHeaderTimeout:     10 * time.Second,
			ShutdownTimeout:       15 * time.Second,
			CORSOrigins:           []string{},
			TrustedProxies:        []string{},
			RateLimitRequests:     300,
			RateLimitWindow:       time.Minute,
			AuthRateLimitRequests: 20,
			MaxBodyBytes:          1 << 20,
		},
		Database: DatabaseConfig{
			AutoMigrate:     false,
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				Issuer:      "manas360",
				Audience:    "manas360-api",
				AccessTTL:   15 * time.Minute,
				MFATokenTTL: 5 * time.Minute,
				Leeway:      30 * time.Second,
			},
			Refresh: RefreshConfig{
				TTL:         7 * 24 * time.Hour,
				RememberTTL: 30 * 24 * time.Hour,
				ReuseGrace:  0,
				Retention:   30 * 24 * time.Hour,
			},
			OTP: OTPConfig{
				Length:       6,
				TTL:          5 * time.Minute,
				MaxAttempts:  5,
				Cooldown:     60 * time.Second,
				AutoRegister: true,
			},
			Lockout: LockoutConfig{
				Threshold: 5,
				Duration:  15 * time.Minute,
			},
			MFA: MFAConfig{
				Issuer:     "MANAS360",
				TOTPSkew:   1,
				HOTPWindow: 10,
			},
			Cookies: CookieConfig{
				Secure:   true,
				SameSite: "strict",
			},
			Reset: ResetConfig{
				TTL:     time.Hour,
				LinkURL: "http://localhost:5173/reset-password",
			},
		},
		Webhook: WebhookConfig{
			Enabled:   false,
			Secrets:   []string{},
			Tolerance: 5 * time.Minute,
		},
		Notify: NotifyConfig{
			Mode:    "log",
			Timeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Maintenance: MaintenanceConfig{
			Interval:         10 * time.Minute,
			WebhookRetention: 30 * 24 * time.Hour,
			OTPRetention:     24 * time.Hour,
			CleanupOnStartup: true,
		},
	}
}

// SameSiteMode maps the configured SameSite name to http.SameSite.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
