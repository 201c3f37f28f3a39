// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package maintenance runs the service's long-lived processes under a suture
// supervisor: the HTTP listeners and the periodic cleanup of expired auth rows.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/manas360/authcore/pkg/errutil"
)

// Cleanup table names, used in logs and metrics.
const (
	TableRefreshTokens  = "refresh_tokens"
	TableOTPChallenges  = "otp_challenges"
	TablePasswordResets = "password_resets"
	TableWebhookEvents  = "webhook_events"
)

// ExpiredDeleter removes rows that expired before cutoff.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AgedDeleter removes rows received before cutoff.
type AgedDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Recorder receives per-table deletion counts.
type Recorder interface {
	CleanupRemoved(table string, n int64)
}

// CleanupConfig configures CleanupService.
type CleanupConfig struct {
	Interval time.Duration

	// RefreshRetention keeps dead families around so reuse is still detected.
	RefreshRetention time.Duration
	OTPRetention     time.Duration
	WebhookRetention time.Duration

	// RunOnStart runs a pass before the first tick.
	RunOnStart bool
}

// DefaultCleanupConfig returns the production schedule.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:         10 * time.Minute,
		RefreshRetention: 30 * 24 * time.Hour,
		OTPRetention:     24 * time.Hour,
		WebhookRetention: 30 * 24 * time.Hour,
	}
}

// CleanupTargets are the repositories swept by CleanupService. Nil targets
// are skipped.
type CleanupTargets struct {
	RefreshTokens  ExpiredDeleter
	OTPChallenges  ExpiredDeleter
	PasswordResets ExpiredDeleter
	WebhookEvents  AgedDeleter
}

// CleanupService periodically deletes expired auth rows. It satisfies
// suture.Service.
type CleanupService struct {
	targets CleanupTargets
	cfg     CleanupConfig
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// CleanupOption configures a CleanupService.
type CleanupOption func(*CleanupService)

// WithCleanupRecorder reports deletion counts to r.
func WithCleanupRecorder(r Recorder) CleanupOption {
	return func(s *CleanupService) { s.metrics = r }
}

// WithCleanupLogger sets the logger.
func WithCleanupLogger(l *slog.Logger) CleanupOption {
	return func(s *CleanupService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCleanupClock overrides time.Now.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) { s.now = now }
}

// NewCleanupService creates a CleanupService. Zero config fields take the
// defaults.
func NewCleanupService(targets CleanupTargets, cfg CleanupConfig, opts ...CleanupOption) *CleanupService {
	def := DefaultCleanupConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RefreshRetention < 0 {
		cfg.RefreshRetention = def.RefreshRetention
	}
	if cfg.OTPRetention < 0 {
		cfg.OTPRetention = def.OTPRetention
	}
	if cfg.WebhookRetention <= 0 {
		cfg.WebhookRetention = def.WebhookRetention
	}
	s := &CleanupService{
		targets: targets,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// String names the service in supervisor logs.
func (s *CleanupService) String() string { return "cleanup" }

// Serve runs a pass every interval until ctx is cancelled.
func (s *CleanupService) Serve(ctx context.Context) error {
	if s.cfg.RunOnStart {
		s.RunOnce(ctx)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every target once and returns rows deleted per table.
// Failures are logged and the remaining targets still run.
func (s *CleanupService) RunOnce(ctx context.Context) map[string]int64 {
	now := s.now()
	counts := make(map[string]int64, 4)

	sweep := func(table string, cutoff time.Time, del func(context.Context, time.Time) (int64, error)) {
		n, err := del(ctx, cutoff)
		if err != nil {
			errutil.LogWarn(ctx, s.logger.With("table", table), "cleanup failed", err)
			return
		}
		counts[table] = n
		if s.metrics != nil {
			s.metrics.CleanupRemoved(table, n)
		}
	}

	if s.targets.RefreshTokens != nil {
		sweep(TableRefreshTokens, now.Add(-s.cfg.RefreshRetention), s.targets.RefreshTokens.DeleteExpired)
	}
	if s.targets.OTPChallenges != nil {
		sweep(TableOTPChallenges, now.Add(-s.cfg.OTPRetention), s.targets.OTPChallenges.DeleteExpired)
	}
	if s.targets.PasswordResets != nil {
		sweep(TablePasswordResets, now, s.targets.PasswordResets.DeleteExpired)
	}
	if s.targets.WebhookEvents != nil {
		sweep(TableWebhookEvents, now.Add(-s.cfg.WebhookRetention), s.targets.WebhookEvents.DeleteOlderThan)
	}

	var total int64
	attrs := make([]any, 0, 2*len(counts)+2)
	for table, n := range counts {
		total += n
		attrs = append(attrs, table, n)
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "cleanup removed expired rows", append(attrs, "total", total)...)
	} else {
		s.logger.DebugContext(ctx, "cleanup found nothing to remove")
	}
	return counts
}
