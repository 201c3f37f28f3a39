// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/auth/postgres"
	"github.com/manas360/authcore/internal/authz"
	"github.com/manas360/authcore/internal/config"
	"github.com/manas360/authcore/internal/httpapi"
	"github.com/manas360/authcore/internal/logging"
	"github.com/manas360/authcore/internal/maintenance"
	"github.com/manas360/authcore/internal/notify"
	"github.com/manas360/authcore/internal/observability"
	"github.com/manas360/authcore/internal/store"
	"github.com/manas360/authcore/internal/webhook"
)

// dbPool is the part of *pgxpool.Pool the service graph uses.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// Connect opens the database pool.
	// Default: store.Connect
	Connect func(ctx context.Context, url string, opts store.ConnectOptions) (dbPool, error)

	// NewMigrator opens a migrator for auto-migrate.
	// Default: store.NewMigrator
	NewMigrator func(url string) (migrator, error)

	// Run blocks until the supervisor tree stops.
	// Default: (*maintenance.Tree).Serve
	Run func(ctx context.Context, tree *maintenance.Tree) error
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, metrics endpoint and cleanup loop",
		Long: `Start the authentication API. The process runs until SIGINT or SIGTERM,
then drains in-flight requests for server.shutdown_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.Connect == nil {
		deps.Connect = func(ctx context.Context, url string, opts store.ConnectOptions) (dbPool, error) {
			return store.Connect(ctx, url, opts)
		}
	}
	if deps.NewMigrator == nil {
		deps.NewMigrator = newMigrator
	}
	if deps.Run == nil {
		deps.Run = func(ctx context.Context, tree *maintenance.Tree) error { return tree.Serve(ctx) }
	}

	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: "manas360",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting manas360",
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"notify_mode", cfg.Notify.Mode,
		"webhooks", cfg.Webhook.Enabled)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.NewMigrator, logger); err != nil {
			return err
		}
	}

	pool, err := deps.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Backoff:  cfg.Database.ConnectBackoff,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	tree := maintenance.NewTree(logger, maintenance.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obs := observability.NewServer(readiness(pool))
		metrics = obs.Metrics()
		tree.AddAPI(maintenance.NewHTTPService("observability", &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           obs.Handler(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		}, cfg.Server.ShutdownTimeout, logger))
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	app, err := buildApp(cfg, pool, metrics, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	tree.AddAPI(maintenance.NewHTTPService("http-api", srv, cfg.Server.ShutdownTimeout, logger))
	tree.AddBackground(app.cleanup)

	err = deps.Run(ctx, tree)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, u := range report {
			logger.Warn("service did not stop in time", "service", u.Name)
		}
	}
	if err != nil {
		return oops.Code("SERVE_FAILED").Wrap(err)
	}
	logger.Info("manas360 stopped")
	return nil
}

func autoMigrate(url string, open func(string) (migrator, error), logger *slog.Logger) error {
	m, err := open(url)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	if err := m.Up(); err != nil {
		return err
	}
	st, err := m.Status()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", st.Version, "name", st.Name)
	return nil
}

func readiness(pool interface{ Ping(context.Context) error }) observability.Probe {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return oops.Code("DB_UNAVAILABLE").Wrapf(err, "database ping")
		}
		return nil
	}
}

// app is the wired service graph.
type app struct {
	auth     *auth.Service
	reset    *auth.PasswordResetService
	webhooks *webhook.Service
	cleanup  *maintenance.CleanupService
	handler  http.Handler
}

func buildApp(cfg *config.Config, pool dbPool, metrics *observability.Metrics, logger *slog.Logger) (*app, error) {
	users := postgres.NewUserRepository(pool)
	refresh := postgres.NewRefreshTokenRepository(pool)
	otps := postgres.NewOTPRepository(pool)
	recovery := postgres.NewRecoveryCodeRepository(pool)
	resets := postgres.NewPasswordResetRepository(pool)
	events := postgres.NewWebhookEventRepository(pool)

	sender, err := newSender(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:      []byte(cfg.Auth.JWT.Secret),
		Issuer:      cfg.Auth.JWT.Issuer,
		Audience:    cfg.Auth.JWT.Audience,
		AccessTTL:   cfg.Auth.JWT.AccessTTL,
		MFATokenTTL: cfg.Auth.JWT.MFATokenTTL,
		Leeway:      cfg.Auth.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	hasher := auth.NewArgon2idHasher()

	a := &app{}
	a.auth, err = auth.NewService(auth.Deps{
		Users:         users,
		RefreshTokens: refresh,
		OTPs:          otps,
		RecoveryCodes: recovery,
		Hasher:        hasher,
		Tokens:        tokens,
		Sender:        sender,
		Metrics:       metrics,
		Logger:        logger.With("component", "auth"),
	}, serviceConfig(cfg.Auth))
	if err != nil {
		return nil, err
	}
	a.reset, err = auth.NewPasswordResetService(auth.ResetDeps{
		Users:         users,
		Resets:        resets,
		RefreshTokens: refresh,
		Hasher:        hasher,
		Sender:        sender,
		Logger:        logger.With("component", "reset"),
	}, auth.ResetConfig{TTL: cfg.Auth.Reset.TTL, LinkURL: cfg.Auth.Reset.LinkURL})
	if err != nil {
		return nil, err
	}

	deps := httpapi.Deps{
		Auth:     a.auth,
		Reset:    a.reset,
		Observer: metrics,
		Logger:   logger.With("component", "http"),
	}
	if cfg.Webhook.Enabled {
		opts := []webhook.VerifierOption{webhook.WithTolerance(cfg.Webhook.Tolerance)}
		if cfg.Webhook.RequireTimestamp {
			opts = append(opts, webhook.RequireTimestamp())
		}
		verifier, err := webhook.NewVerifier(cfg.Webhook.Secrets, opts...)
		if err != nil {
			return nil, err
		}
		wlog := logger.With("component", "webhook")
		a.webhooks, err = webhook.NewService(verifier, events, webhook.NewLogDispatcher(wlog),
			webhook.WithRecorder(metrics),
			webhook.WithLogger(wlog))
		if err != nil {
			return nil, err
		}
		deps.Webhooks = a.webhooks
	}
	deps.Enforcer, err = authz.NewEnforcer()
	if err != nil {
		return nil, err
	}
	a.handler, err = httpapi.NewRouter(deps, httpapi.Config{
		CORSOrigins:           cfg.Server.CORSOrigins,
		RateLimitRequests:     cfg.Server.RateLimitRequests,
		RateLimitWindow:       cfg.Server.RateLimitWindow,
		AuthRateLimitRequests: cfg.Server.AuthRateLimitRequests,
		MaxBodyBytes:          cfg.Server.MaxBodyBytes,
		TrustedProxies:        cfg.Server.TrustedProxies,
		Cookies: httpapi.CookieConfig{
			Secure:   cfg.Auth.Cookies.Secure,
			SameSite: cfg.Auth.Cookies.SameSiteMode(),
			Domain:   cfg.Auth.Cookies.Domain,
		},
	})
	if err != nil {
		return nil, err
	}

	a.cleanup = maintenance.NewCleanupService(maintenance.CleanupTargets{
		RefreshTokens:  refresh,
		OTPChallenges:  otps,
		PasswordResets: resets,
		WebhookEvents:  events,
	}, maintenance.CleanupConfig{
		Interval:         cfg.Maintenance.Interval,
		RefreshRetention: cfg.Auth.Refresh.Retention,
		OTPRetention:     cfg.Maintenance.OTPRetention,
		WebhookRetention: cfg.Maintenance.WebhookRetention,
		RunOnStart:       cfg.Maintenance.CleanupOnStartup,
	}, maintenance.WithCleanupRecorder(metrics), maintenance.WithCleanupLogger(logger.With("component", "cleanup")))
	return a, nil
}

func serviceConfig(c config.AuthConfig) auth.ServiceConfig {
	return auth.ServiceConfig{
		RefreshTTL:  c.Refresh.TTL,
		RememberTTL: c.Refresh.RememberTTL,
		ReuseGrace:  c.Refresh.ReuseGrace,
		Lockout:     auth.LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration},
		OTP: auth.OTPPolicy{
			Length:       c.OTP.Length,
			TTL:          c.OTP.TTL,
			MaxAttempts:  c.OTP.MaxAttempts,
			Cooldown:     c.OTP.Cooldown,
			Pepper:       c.OTPPepper(),
			AutoRegister: c.OTP.AutoRegister,
		},
		MFA: auth.MFAPolicy{Issuer: c.MFA.Issuer, TOTPSkew: c.MFA.TOTPSkew, HOTPWindow: c.MFA.HOTPWindow},
	}
}

func newSender(c config.NotifyConfig, logger *slog.Logger) (notify.Sender, error) {
	switch c.Mode {
	case "http":
		return notify.NewHTTPSender(notify.HTTPConfig{
			URL:     c.URL,
			APIKey:  c.APIKey,
			Timeout: c.Timeout,
			Logger:  logger.With("component", "notify"),
		})
	case "log", "":
		return notify.NewLogSender(logger.With("component", "notify")), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("mode", c.Mode).Errorf("notify.mode must be log or http")
	}
}
